// Create users and log in as them:
//
//	Given a user named "jane"
//	And an admin named "anna"
//	And I am logged in as "jane"
//
// Each user gets a fresh subject, so ${jane.Subject} and ${jane.Email} can be
// used in paths and json bodies. Requests are anonymous until a user logs in:
//
//	Given I am not logged in
package cucumber

import (
	"fmt"
	"time"

	"github.com/cucumber/godog"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^a user named "([^"]*)"$`, s.aUserNamed)
		ctx.Step(`^a user named "([^"]*)" with email "([^"]*)"$`, s.aUserNamedWithEmail)
		ctx.Step(`^an admin named "([^"]*)"$`, s.anAdminNamed)
		ctx.Step(`^I am logged in as "([^"]*)"$`, s.iAmLoggedInAs)
		ctx.Step(`^I am not logged in$`, s.iAmNotLoggedIn)
	})
}

func (s *TestScenario) aUserNamed(name string) error {
	return s.createUser(name, name+"@example.com", false)
}

func (s *TestScenario) aUserNamedWithEmail(name, email string) error {
	email, err := s.Expand(email)
	if err != nil {
		return err
	}
	return s.createUser(name, email, false)
}

func (s *TestScenario) anAdminNamed(name string) error {
	return s.createUser(name, name+"@example.com", true)
}

func (s *TestScenario) createUser(name, email string, admin bool) error {
	if _, ok := s.Users[name]; ok {
		return fmt.Errorf("user %q already exists in this scenario", name)
	}
	user := &TestUser{
		Name:    name,
		Subject: uuid.New().String(),
		Email:   email,
		Admin:   admin,
	}
	s.Users[name] = user
	s.Variables[name] = user
	return nil
}

func (s *TestScenario) iAmLoggedInAs(name string) error {
	user, ok := s.Users[name]
	if !ok {
		return fmt.Errorf("user %q has not been created", name)
	}
	if user.Token == nil || !user.Token.Valid() {
		token, err := s.Suite.mintToken(user)
		if err != nil {
			return err
		}
		user.Token = token
	}
	s.CurrentUser = name
	return nil
}

func (s *TestScenario) iAmNotLoggedIn() error {
	s.CurrentUser = ""
	return nil
}

func (s *TestSuite) mintToken(user *TestUser) (*oauth2.Token, error) {
	if len(s.SigningKey) == 0 {
		return nil, fmt.Errorf("the test suite has no signing key")
	}
	now := time.Now()
	expiry := now.Add(time.Hour)
	claims := jwt.MapClaims{
		"sub":                user.Subject,
		"email":              user.Email,
		"name":               user.Name,
		"preferred_username": user.Name,
		"iat":                now.Unix(),
		"exp":                expiry.Unix(),
	}
	if user.Admin {
		claims["scope"] = "admin"
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.SigningKey)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}
