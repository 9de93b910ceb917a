package appointment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/pkg/pagination"
)

type Handler struct {
	svc     *Service
	auditor *Auditor
}

// NewHandler builds the appointment routes. auditor may be nil, in which
// case the on-demand audit route is not mounted.
func NewHandler(svc *Service, auditor *Auditor) *Handler {
	return &Handler{svc: svc, auditor: auditor}
}

func (h *Handler) RegisterRoutes(api *echo.Group, issuer *auth.TokenIssuer) {
	user := api.Group("/user", auth.Protect(issuer, auth.RoleUser)...)
	user.POST("/book-appointment", h.Book)
	user.GET("/appointments", h.ListForUser)
	user.POST("/cancel-appointment", h.Cancel)
	user.POST("/payment-razorpay", h.CreatePaymentOrder)
	user.POST("/verify-razorpay", h.VerifyPayment)

	doc := api.Group("/doctor", auth.Protect(issuer, auth.RoleDoctor)...)
	doc.GET("/appointments", h.ListForDoctor)
	doc.POST("/complete-appointment", h.Complete)
	doc.POST("/cancel-appointment", h.DoctorCancel)
	doc.GET("/dashboard", h.DoctorDashboard)

	admin := api.Group("/admin", auth.Protect(issuer, auth.RoleAdmin)...)
	admin.GET("/appointments", h.List)
	admin.POST("/cancel-appointment", h.AdminCancel)
	admin.GET("/dashboard", h.Dashboard)
	if h.auditor != nil {
		admin.GET("/ledger-audit", h.Audit)
	}
}

type bookRequest struct {
	DocID    string `json:"docId"`
	SlotDate string `json:"slotDate"`
	SlotTime string `json:"slotTime"`
}

type appointmentRequest struct {
	AppointmentID string `json:"appointmentId"`
}

type verifyRequest struct {
	OrderID string `json:"razorpay_order_id"`
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func subject(c echo.Context) string {
	return auth.SubjectFromContext(c.Request().Context())
}

func ok(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": message})
}

func (h *Handler) Book(c echo.Context) error {
	var req bookRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), subject(c), req.DocID, req.SlotDate, req.SlotTime)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Appointment booked", "appointment": a})
}

func (h *Handler) ListForUser(c echo.Context) error {
	items, err := h.svc.ListForUser(c.Request().Context(), subject(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "appointments": items})
}

func (h *Handler) Cancel(c echo.Context) error {
	var req appointmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), subject(c), req.AppointmentID); err != nil {
		return err
	}
	return ok(c, "Appointment cancelled")
}

func (h *Handler) CreatePaymentOrder(c echo.Context) error {
	var req appointmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	order, err := h.svc.CreatePaymentOrder(c.Request().Context(), subject(c), req.AppointmentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "order": order})
}

func (h *Handler) VerifyPayment(c echo.Context) error {
	var req verifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.VerifyPayment(c.Request().Context(), subject(c), req.OrderID); err != nil {
		return err
	}
	return ok(c, "Payment Successful")
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	items, err := h.svc.ListForDoctor(c.Request().Context(), subject(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "appointments": items})
}

func (h *Handler) Complete(c echo.Context) error {
	var req appointmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.Complete(c.Request().Context(), subject(c), req.AppointmentID); err != nil {
		return err
	}
	return ok(c, "Appointment completed")
}

func (h *Handler) DoctorCancel(c echo.Context) error {
	var req appointmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.DoctorCancel(c.Request().Context(), subject(c), req.AppointmentID); err != nil {
		return err
	}
	return ok(c, "Appointment cancelled")
}

func (h *Handler) DoctorDashboard(c echo.Context) error {
	dash, err := h.svc.DoctorDashboard(c.Request().Context(), subject(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "dashData": dash})
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"appointments": items,
		"pagination":   pagination.NewResponse(p, total),
	})
}

func (h *Handler) AdminCancel(c echo.Context) error {
	var req appointmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.AdminCancel(c.Request().Context(), req.AppointmentID); err != nil {
		return err
	}
	return ok(c, "Appointment cancelled")
}

func (h *Handler) Dashboard(c echo.Context) error {
	dash, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "dashData": dash})
}

func (h *Handler) Audit(c echo.Context) error {
	report, err := h.auditor.Run(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "report": report})
}
