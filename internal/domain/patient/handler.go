package patient

import (
	"encoding/json"
	"errors"
	"net/http"

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

func (h *Handler) RegisterRoutes(api *echo.Group, issuer *auth.TokenIssuer) {
	public := api.Group("/user")
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)

	self := api.Group("/user", auth.Protect(issuer, auth.RoleUser)...)
	self.GET("/get-profile", h.GetProfile)
	self.POST("/update-profile", h.UpdateProfile)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	token, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "token": token})
}

func (h *Handler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	token, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "token": token})
}

func (h *Handler) GetProfile(c echo.Context) error {
	ctx := c.Request().Context()
	u, err := h.svc.Get(ctx, auth.SubjectFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "userData": u})
}

// UpdateProfile accepts the multipart profile form; address is a JSON
// encoded object and "image" an optional picture.
func (h *Handler) UpdateProfile(c echo.Context) error {
	in := ProfileInput{
		Name:   c.FormValue("name"),
		Phone:  c.FormValue("phone"),
		DOB:    c.FormValue("dob"),
		Gender: c.FormValue("gender"),
	}
	if raw := c.FormValue("address"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Address); err != nil {
			return apperr.Validation("Address must be a JSON object")
		}
	}

	ctx := c.Request().Context()
	id := auth.SubjectFromContext(ctx)
	fh, err := c.FormFile("image")
	switch {
	case err == nil:
		f, openErr := fh.Open()
		if openErr != nil {
			return apperr.Validation("image could not be read")
		}
		defer f.Close()
		err = h.svc.UpdateProfile(ctx, id, in, f)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		err = h.svc.UpdateProfile(ctx, id, in, nil)
	default:
		return apperr.Validation("invalid multipart form")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Profile updated"})
}
