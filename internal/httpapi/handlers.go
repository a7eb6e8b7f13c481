package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/imagestore"
)

func includeInactive(r *http.Request) bool {
	return r.URL.Query().Get("include_inactive") == "true"
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), includeInactive(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := a.service.ListMaterials(r.Context(), includeInactive(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"materials": materials})
}

func (a *API) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req domain.MaterialCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	material, err := a.service.CreateMaterial(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, material)
}

func (a *API) handleUpdateMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req domain.MaterialUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	material, err := a.service.UpdateMaterial(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, material)
}

// handleItemImage accepts a multipart upload in the "image" field.
func (a *API) handleItemImage(kind domain.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, imagestore.MaxUploadBytes+64<<10)
		file, _, err := r.FormFile("image")
		if err != nil {
			writeError(w, r, apperror.NewValidation("image file is required").WithDetail("image", err.Error()))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, imagestore.MaxUploadBytes+1))
		if err != nil {
			writeError(w, r, apperror.NewValidation("could not read image").WithDetail("image", err.Error()))
			return
		}
		if len(data) > imagestore.MaxUploadBytes {
			writeError(w, r, apperror.NewValidation("image is too large").WithDetail("max_bytes", imagestore.MaxUploadBytes))
			return
		}

		path, err := a.service.UploadItemImage(r.Context(), domain.ItemRef{Kind: kind, ID: id}, data)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"image_path": path})
	}
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := a.service.Receipt(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) queryDate(r *http.Request, key string) (time.Time, error) {
	date, err := a.service.ResolveDate(r.URL.Query().Get(key))
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok {
			appErr.WithDetail("param", key)
		}
		return time.Time{}, err
	}
	return date, nil
}

func (a *API) handleDeliveryData(w http.ResponseWriter, r *http.Request) {
	date, err := a.queryDate(r, "date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := a.service.DeliveryData(r.Context(), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (a *API) handleOpenDelivery(w http.ResponseWriter, r *http.Request) {
	var req domain.DeliveryOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	row, err := a.service.OpenDelivery(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (a *API) handleUpdateDeliveries(w http.ResponseWriter, r *http.Request) {
	var req domain.DeliveryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := a.service.UpdateDeliveries(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": rows})
}

func (a *API) handleConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := a.service.ConfirmDelivery(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseItemRef(r *http.Request) (domain.ItemRef, error) {
	kind, err := domain.ParseItemKind(chi.URLParam(r, "kind"))
	if err != nil {
		return domain.ItemRef{}, apperror.NewValidation(err.Error())
	}
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		return domain.ItemRef{}, err
	}
	return domain.ItemRef{Kind: kind, ID: id}, nil
}

func (a *API) handleListLedger(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseItemKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, r, apperror.NewValidation(err.Error()).WithDetail("param", "kind"))
		return
	}
	date, err := a.queryDate(r, "date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := a.service.ListLedger(r.Context(), kind, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": domain.FormatDate(date), "records": records})
}

func (a *API) handleLedgerEntry(w http.ResponseWriter, r *http.Request) {
	item, err := parseItemRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := a.queryDate(r, "date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := a.service.LedgerEntry(r.Context(), item, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleApplyUsage(w http.ResponseWriter, r *http.Request) {
	item, err := parseItemRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := a.queryDate(r, "date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var delta domain.UsageDelta
	if err := decodeJSON(r, &delta); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := a.service.ApplyUsage(r.Context(), item, date, delta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleReproject(w http.ResponseWriter, r *http.Request) {
	date, err := a.queryDate(r, "date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := a.service.ReprojectLiveQuantities(r.Context(), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": domain.FormatDate(date), "items": n})
}

// dateRange reads from/to, each defaulting to today.
func (a *API) dateRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := a.queryDate(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := a.queryDate(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	from, to, err := a.dateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expenses, err := a.service.ListExpenses(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := a.service.CreateExpense(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := a.service.DeleteExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleSummary serves one day by default, or a range when from or to is given.
func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("from") != "" || query.Get("to") != "" {
		from, to, err := a.dateRange(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		summaries, err := a.service.Summaries(r.Context(), from, to)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
		return
	}

	date, err := a.queryDate(r, "date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := a.service.Summary(r.Context(), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleRecomputeSummary(w http.ResponseWriter, r *http.Request) {
	date, err := a.service.ResolveDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := a.service.RecomputeSummary(r.Context(), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleExportSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := a.dateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	export, err := a.service.ExportSummaries(r.Context(), from, to, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), strings.TrimSpace(query.Get("date")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"staff": a.auth.ListStaff(r.Context())})
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.auth.CreateStaff(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
