package handlers

import (
	"errors"
	"net/http"

	"github.com/asjpl/pcl-portal/internal/middleware"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/customers"
)

// AccountHome renders the customer's leases and balances
func (h *Handler) AccountHome(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r)
	data := pageData{Title: "My account", Session: session}

	customer, err := h.customers.GetByUser(r.Context(), session.SubjectID)
	if err != nil && !errors.Is(err, customers.ErrCustomerNotFound) {
		writeError(w, r, err)
		return
	}
	if customer != nil {
		data.Customer = customer
		leases, err := h.leasing.CustomerLeases(r.Context(), customer.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data.Leases = leases
	}
	h.render(w, "account.html", data)
}

// AccountLeases returns the signed-in customer's leases with schedules and fees
func (h *Handler) AccountLeases(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.currentCustomer(w, r)
	if !ok {
		return
	}
	leases, err := h.leasing.CustomerLeases(r.Context(), customer.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leases": leases})
}

// AccountMessages returns the signed-in customer's SMS history
func (h *Handler) AccountMessages(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.currentCustomer(w, r)
	if !ok {
		return
	}
	messages, err := h.messaging.CustomerMessages(r.Context(), customer.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *Handler) currentCustomer(w http.ResponseWriter, r *http.Request) (*models.Customer, bool) {
	customer, err := h.customers.GetByUser(r.Context(), middleware.GetSession(r).SubjectID)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return customer, true
}
