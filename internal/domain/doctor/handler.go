package doctor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the doctor routes under api (the /api group).
func (h *Handler) RegisterRoutes(api *echo.Group, issuer *auth.TokenIssuer) {
	public := api.Group("/doctor")
	public.GET("/list", h.ListPublic)
	public.POST("/login", h.Login)

	self := api.Group("/doctor", auth.Protect(issuer, auth.RoleDoctor)...)
	self.GET("/profile", h.Profile)
	self.POST("/change-availability", h.ToggleOwnAvailability)
	self.POST("/update-profile", h.UpdateProfile)

	admin := api.Group("/admin", auth.Protect(issuer, auth.RoleAdmin)...)
	admin.POST("/add-doctor", h.Create)
	admin.POST("/all-doctors", h.ListAll)
	admin.POST("/change-availability", h.ToggleAvailability)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type availabilityRequest struct {
	DocID string `json:"docId"`
}

func (h *Handler) ListPublic(c echo.Context) error {
	doctors, err := h.svc.ListPublic(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "doctors": doctors})
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	token, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "token": token})
}

func (h *Handler) Profile(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.svc.Get(ctx, auth.SubjectFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "profileData": d})
}

func (h *Handler) ToggleOwnAvailability(c echo.Context) error {
	ctx := c.Request().Context()
	available, err := h.svc.ToggleAvailability(ctx, auth.SubjectFromContext(ctx))
	if err != nil {
		return err
	}
	return availabilityChanged(c, available)
}

func (h *Handler) ToggleAvailability(c echo.Context) error {
	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	available, err := h.svc.ToggleAvailability(c.Request().Context(), req.DocID)
	if err != nil {
		return err
	}
	return availabilityChanged(c, available)
}

func availabilityChanged(c echo.Context, available bool) error {
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"message":   "Availability changed",
		"available": available,
	})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var in ProfileInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	if err := h.svc.UpdateProfile(ctx, auth.SubjectFromContext(ctx), in); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Profile updated"})
}

// Create handles the multipart add-doctor form. address arrives as a JSON
// encoded object and the picture under the "image" field.
func (h *Handler) Create(c echo.Context) error {
	in := CreateInput{
		Name:       c.FormValue("name"),
		Email:      c.FormValue("email"),
		Password:   c.FormValue("password"),
		Specialty:  c.FormValue("specialty"),
		Degree:     c.FormValue("degree"),
		Experience: c.FormValue("experience"),
		About:      c.FormValue("about"),
	}
	if raw := strings.TrimSpace(c.FormValue("fees")); raw != "" {
		fees, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return apperr.Validation("Fees must be a positive amount")
		}
		in.Fees = fees
	}
	if raw := c.FormValue("address"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Address); err != nil {
			return apperr.Validation("Address must be a JSON object")
		}
	}

	fh, err := c.FormFile("image")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		return apperr.Validation("invalid multipart form")
	}
	ctx := c.Request().Context()
	var d *Doctor
	if fh == nil {
		d, err = h.svc.Create(ctx, in, nil)
	} else {
		f, openErr := fh.Open()
		if openErr != nil {
			return apperr.Validation("image could not be read")
		}
		defer f.Close()
		d, err = h.svc.Create(ctx, in, f)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Doctor added", "doctor": d})
}

func (h *Handler) ListAll(c echo.Context) error {
	doctors, err := h.svc.ListAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "doctors": doctors})
}
