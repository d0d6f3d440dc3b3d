// Package authz decides which commands a caller may run on a network. The
// decision is a rego policy evaluated with OPA; the role each command needs
// lives in the policy's data store.
package authz

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/partup/partup/internal/models"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/partup/partup/internal/authz")

//go:embed policy.rego
var policy string

const query = "data.partup.authz.allow"

// Roles a command can require.
const (
	RolePlatformAdmin = "platform_admin"
	RoleNetworkAdmin  = "network_admin"
	RoleNetworkMember = "network_member"
)

// CommandRoles is the role each authorized command needs. Commands not
// listed are denied.
var CommandRoles = map[string]string{
	"networks.insert":                RolePlatformAdmin,
	"networks.remove":                RolePlatformAdmin,
	"networks.update":                RoleNetworkAdmin,
	"networks.invite_by_email":       RoleNetworkMember,
	"networks.invite_existing_upper": RoleNetworkMember,
	"networks.invites":               RoleNetworkMember,
}

// Subject is who asks to run a command.
type Subject struct {
	ID            string
	PlatformAdmin bool
}

type Authorizer struct {
	query rego.PreparedEvalQuery
}

// New compiles the policy against roles.
func New(ctx context.Context, roles map[string]string) (*Authorizer, error) {
	commands := make(map[string]interface{}, len(roles))
	for command, role := range roles {
		commands[command] = role
	}
	store := inmem.NewFromObject(map[string]interface{}{
		"partup": map[string]interface{}{
			"commands": commands,
		},
	})
	prepared, err := rego.New(
		rego.Query(query),
		rego.Module("policy.rego", policy),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compiling authorization policy: %w", err)
	}
	return &Authorizer{query: prepared}, nil
}

var (
	defaultOnce       sync.Once
	defaultAuthorizer *Authorizer
)

// Default is the Authorizer for CommandRoles. The policy ships with the
// binary, so failing to compile it is a programming error.
func Default() *Authorizer {
	defaultOnce.Do(func() {
		a, err := New(context.Background(), CommandRoles)
		if err != nil {
			panic(err)
		}
		defaultAuthorizer = a
	})
	return defaultAuthorizer
}

// Allowed reports whether subject may run command. n is the network the
// command targets, or nil for commands that target none.
func (a *Authorizer) Allowed(ctx context.Context, command string, subject Subject, n *models.Network) (bool, error) {
	ctx, span := tracer.Start(ctx, "Allowed")
	defer span.End()

	input := map[string]interface{}{
		"command": command,
		"caller": map[string]interface{}{
			"id":    subject.ID,
			"admin": subject.PlatformAdmin,
		},
	}
	if n != nil {
		uppers := make([]interface{}, 0, len(n.Uppers))
		for _, u := range n.Uppers {
			uppers = append(uppers, u)
		}
		input["network"] = map[string]interface{}{
			"id":       n.ID,
			"admin_id": n.AdminID,
			"uppers":   uppers,
		}
	}
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, err
	}
	return rs.Allowed(), nil
}
