package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dcavalli/fidelgate/internal/util"
	"github.com/dcavalli/fidelgate/internal/uuid"
)

func nowMilli() int64 {
	return time.Now().UnixMilli()
}

const customerCollection = "customers"

var errPhoneTaken = errors.New("phone number already registered")

// customerRecord is the persisted (encrypted at rest) customer entry.
type customerRecord struct {
	ID        string `json:"id"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at"`
}

// normalizePhone strips separators so lookups are stable regardless of how
// the number was typed.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, util.Normalize(phone))
}

func (a *API) saveCustomer(ctx context.Context, rec customerRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// Bound to the collection only: phone lookups scan values through the
	// store's Query, which does not surface keys to the predicate.
	sealed := a.cipher.EncryptBound(string(encoded), customerCollection)
	if sealed == "" {
		return fmt.Errorf("encrypting customer record failed")
	}
	return a.store.Set(ctx, customerCollection, rec.ID, []byte(sealed))
}

func (a *API) decodeCustomer(data []byte) (customerRecord, bool) {
	plain := a.cipher.DecryptBound(string(data), customerCollection)
	if plain == "" {
		return customerRecord{}, false
	}
	var rec customerRecord
	if err := json.Unmarshal([]byte(plain), &rec); err != nil {
		return customerRecord{}, false
	}
	return rec, true
}

// customerByPhone resolves a customer record by normalized phone number.
func (a *API) customerByPhone(ctx context.Context, phone string) (customerRecord, bool, error) {
	want := normalizePhone(phone)
	if want == "" {
		return customerRecord{}, false, nil
	}
	matches, err := a.store.Query(ctx, customerCollection, func(value []byte) bool {
		rec, ok := a.decodeCustomer(value)
		return ok && normalizePhone(rec.Phone) == want
	})
	if err != nil {
		return customerRecord{}, false, err
	}
	if len(matches) == 0 {
		return customerRecord{}, false, nil
	}
	rec, ok := a.decodeCustomer(matches[0])
	return rec, ok, nil
}

func (a *API) createCustomer(ctx context.Context, phone, firstName, lastName string) (customerRecord, error) {
	if _, exists, err := a.customerByPhone(ctx, phone); err != nil {
		return customerRecord{}, err
	} else if exists {
		return customerRecord{}, errPhoneTaken
	}
	rec := customerRecord{
		ID:        uuid.New(),
		Phone:     normalizePhone(phone),
		FirstName: firstName,
		LastName:  lastName,
		Active:    true,
		CreatedAt: nowMilli(),
	}
	if err := a.saveCustomer(ctx, rec); err != nil {
		return customerRecord{}, err
	}
	return rec, nil
}

// CreateCustomer handles POST /admin/customers.
func (a *API) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateCustomerRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if normalizePhone(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}
	rec, err := a.createCustomer(r.Context(), req.Phone, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, errPhoneTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, customerToAPI(rec))
}

// ListCustomers handles GET /admin/customers.
func (a *API) ListCustomers(w http.ResponseWriter, r *http.Request) {
	values, err := a.store.Query(r.Context(), customerCollection, func([]byte) bool { return true })
	if err != nil {
		mapError(w, err)
		return
	}
	customers := make([]CustomerResponse, 0, len(values))
	for _, value := range values {
		if rec, ok := a.decodeCustomer(value); ok {
			customers = append(customers, customerToAPI(rec))
		}
	}
	sort.Slice(customers, func(i, j int) bool {
		return customers[i].CreatedAt < customers[j].CreatedAt
	})
	writeJSON(w, http.StatusOK, customers)
}

func customerToAPI(rec customerRecord) CustomerResponse {
	return CustomerResponse{
		ID:        rec.ID,
		Phone:     rec.Phone,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Active:    rec.Active,
		CreatedAt: rec.CreatedAt,
	}
}
