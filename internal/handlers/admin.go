package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/middleware"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/auth"
	"github.com/asjpl/pcl-portal/internal/services/customers"
	"github.com/asjpl/pcl-portal/internal/services/leasing"
	"github.com/asjpl/pcl-portal/internal/services/messaging"
	"github.com/asjpl/pcl-portal/internal/services/regcheck"
)

// AdminHome renders the admin dashboard
func (h *Handler) AdminHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := pageData{Title: "Admin", Session: middleware.GetSession(r)}

	if list, err := h.customers.List(ctx); err == nil {
		data.Counts.Customers = len(list)
	}
	if list, err := h.leasing.ListVehicles(ctx); err == nil {
		data.Counts.Vehicles = len(list)
	}
	if list, err := h.leasing.ListLeases(ctx); err == nil {
		data.Counts.Leases = len(list)
	}
	h.render(w, "admin.html", data)
}

// CreateAdminUser adds another administrator
func (h *Handler) CreateAdminUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"fullName"`
	}
	if isForm(r) {
		if err := parseForm(w, r); err != nil {
			writeError(w, r, err)
			return
		}
		input.Email = r.FormValue("email")
		input.Password = r.FormValue("password")
		input.FullName = r.FormValue("fullName")
	} else if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.auth.CreateAdmin(r.Context(), auth.CreateAdminInput{
		Email:    input.Email,
		Password: input.Password,
		FullName: input.FullName,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			jsonError(w, "User already exists.", http.StatusConflict)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "user": user})
}

// CreateCustomer onboards a customer and emails their temporary password
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var input customers.CreateInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.customers.Create(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"ok":         true,
		"user":       result.User,
		"customer":   result.Customer,
		"emailSent":  result.EmailSent,
		"emailError": result.EmailError,
	}
	if h.cfg.IsDevelopment() {
		resp["tempPassword"] = result.TempPassword
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListCustomers returns every customer
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	list, err := h.customers.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": list})
}

// GetCustomer returns a customer with their leases, SMS history and events
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := h.customers.GetDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// IssueTemporaryPassword resets a customer's password to a new temporary one
func (h *Handler) IssueTemporaryPassword(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.customers.IssueTemporaryPassword(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"ok":         true,
		"customerId": result.CustomerID,
		"email":      result.Email,
		"emailSent":  result.EmailSent,
		"emailError": result.EmailError,
	}
	if h.cfg.IsDevelopment() {
		resp["tempPassword"] = result.TempPassword
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateVehicle adds a vehicle to the fleet
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var input leasing.VehicleInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	vehicle, err := h.leasing.CreateVehicle(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "vehicle": vehicle})
}

// ListVehicles returns the fleet
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	list, err := h.leasing.ListVehicles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": list})
}

// GetVehicle returns a vehicle by slug
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.leasing.GetVehicle(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

// RegCheckLookup queries the registration service for a plate
func (h *Handler) RegCheckLookup(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RegoNumber string `json:"regoNumber"`
		State      string `json:"state"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(input.State) == "" {
		input.State = regcheck.DefaultState
	}

	data, err := h.regcheck.Lookup(r.Context(), input.RegoNumber, input.State)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"data":    data,
		"summary": regcheck.Summarize(data),
	})
}

// CreateLease opens a lease and its payment schedule
func (h *Handler) CreateLease(w http.ResponseWriter, r *http.Request) {
	var input leasing.LeaseInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	lease, err := h.leasing.CreateLease(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "lease": lease})
}

// ListLeases returns every lease
func (h *Handler) ListLeases(w http.ResponseWriter, r *http.Request) {
	list, err := h.leasing.ListLeases(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leases": list})
}

// GetLease returns a lease with its schedule, fees and balance
func (h *Handler) GetLease(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := h.leasing.GetLease(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// paymentAction adapts a payment status change to a handler
func paymentAction(action func(context.Context, uuid.UUID) (*models.PaymentObligation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		payment, err := action(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "payment": payment})
	}
}

// WaiveLateFee waives a single late fee
func (h *Handler) WaiveLateFee(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.leasing.WaiveLateFee(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SendMessage sends an SMS or email to a customer
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var input messaging.SendInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	session := middleware.GetSession(r)
	result, err := h.messaging.Send(r.Context(), session.SubjectID, input)
	if err != nil {
		// Provider rejections are reported as a bad request
		if errors.Is(err, apperr.ErrIntegration) {
			jsonError(w, apperr.Message(err), http.StatusBadRequest)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "smsId": result.SmsID})
}
