package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/networks"
)

// method is a command callable through POST /api/methods/:name with a JSON
// array of positional arguments.
type method struct {
	params []string
	call   func(ctx context.Context, caller *networks.Caller, args *arguments) (any, error)
}

// arguments decodes positional arguments. The first decoding failure is
// kept in err and every later accessor is a no-op.
type arguments struct {
	raw   []json.RawMessage
	names []string
	err   error
}

func (a *arguments) String(i int) string {
	var s string
	a.decode(i, '"', "string", &s)
	return s
}

func (a *arguments) Object(i int, v any) {
	a.decode(i, '{', "object", v)
}

func (a *arguments) decode(i int, first byte, kind string, v any) {
	if a.err != nil {
		return
	}
	raw := bytes.TrimSpace(a.raw[i])
	if len(raw) == 0 || raw[0] != first {
		a.err = a.invalid(i, kind)
		return
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.err = a.invalid(i, kind)
	}
}

func (a *arguments) invalid(i int, kind string) error {
	return NewApiResponseError(http.StatusBadRequest, models.NewFieldValidationError(
		a.names[i], fmt.Sprintf("argument %d must be a %s", i+1, kind),
	))
}

func (api *API) registerMethods() map[string]method {
	s := api.service
	return map[string]method{
		"networks.insert": {
			params: []string{"fields"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				var fields models.AddNetwork
				a.Object(0, &fields)
				if a.err != nil {
					return nil, a.err
				}
				return s.Create(ctx, caller, fields)
			},
		},
		"networks.update": {
			params: []string{"networkId", "fields"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				networkID := a.String(0)
				var fields models.UpdateNetwork
				a.Object(1, &fields)
				if a.err != nil {
					return nil, a.err
				}
				return s.Update(ctx, caller, networkID, fields)
			},
		},
		"networks.remove": {
			params: []string{"networkId"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				networkID := a.String(0)
				if a.err != nil {
					return nil, a.err
				}
				return nil, s.Remove(ctx, caller, networkID)
			},
		},
		"networks.invite_by_email": {
			params: []string{"networkId", "email", "name"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				networkID, email, name := a.String(0), a.String(1), a.String(2)
				if a.err != nil {
					return nil, a.err
				}
				return s.InviteByEmail(ctx, caller, networkID, email, name)
			},
		},
		"networks.invite_existing_upper": {
			params: []string{"networkId", "inviteeId"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				networkID, inviteeID := a.String(0), a.String(1)
				if a.err != nil {
					return nil, a.err
				}
				return s.InviteExistingUpper(ctx, caller, networkID, inviteeID)
			},
		},
		"networks.join": {
			params: []string{"networkId"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				networkID := a.String(0)
				if a.err != nil {
					return nil, a.err
				}
				return s.Join(ctx, caller, networkID)
			},
		},
		"networks.accept": {
			params: []string{"networkId", "upperId"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				networkID, upperID := a.String(0), a.String(1)
				if a.err != nil {
					return nil, a.err
				}
				return s.Accept(ctx, caller, networkID, upperID)
			},
		},
		"networks.reject": {
			params: []string{"networkId", "upperId"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				networkID, upperID := a.String(0), a.String(1)
				if a.err != nil {
					return nil, a.err
				}
				return s.Reject(ctx, caller, networkID, upperID)
			},
		},
		"networks.leave": {
			params: []string{"networkId"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				networkID := a.String(0)
				if a.err != nil {
					return nil, a.err
				}
				return s.Leave(ctx, caller, networkID)
			},
		},
		"networks.remove_upper": {
			params: []string{"networkId", "upperId"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				networkID, upperID := a.String(0), a.String(1)
				if a.err != nil {
					return nil, a.err
				}
				return s.RemoveUpper(ctx, caller, networkID, upperID)
			},
		},
		"networks.autocomplete": {
			params: []string{"query"},
			call: func(ctx context.Context, caller *networks.Caller, a *arguments) (any, error) {
				query := a.String(0)
				if a.err != nil {
					return nil, a.err
				}
				return s.Autocomplete(ctx, caller, query)
			},
		},
	}
}

// MethodNames returns the names accepted by CallMethod, sorted.
func (api *API) MethodNames() []string {
	names := make([]string, 0, len(api.methods))
	for name := range api.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallMethod runs a named command
// @Summary      Call Method
// @Description  Runs a named command with a JSON array of positional arguments
// @Id           CallMethod
// @Tags         Methods
// @Accept       json
// @Produce      json
// @Param        name  path     string        true "method name"
// @Param        args  body     []interface{} true "arguments"
// @Success      200   {object} map[string]interface{}
// @Failure      400   {object} models.ValidationError
// @Failure      404   {object} models.NotFoundError
// @Router       /api/methods/{name} [post]
func (api *API) CallMethod(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "CallMethod")
	defer span.End()

	name := c.Param("name")
	m, ok := api.methods[name]
	if !ok {
		c.JSON(http.StatusNotFound, models.NewNotFoundError("method"))
		return
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(c.Request.Body).Decode(&raw); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if len(raw) != len(m.params) {
		c.JSON(http.StatusBadRequest, models.ValidationError{
			BaseError: models.NewApiError("invalid_argument_count",
				fmt.Sprintf("%s expects %d arguments, got %d", name, len(m.params), len(raw))),
		})
		return
	}

	result, err := m.call(ctx, api.GetCaller(c), &arguments{raw: raw, names: m.params})
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
