// Setting a path prefixed to subsequent http requests:
//
//	Given the path prefix is "/api"
//
// Send an http request. Supports (GET|POST|PUT|DELETE|PATCH|OPTION):
//
//	When I GET path "/networks/${network_id}"
//
// Send an http request with a body. Supports (GET|POST|PUT|DELETE|PATCH|OPTION):
//
//	When I POST path "/networks" with json body:
//	  """
//	  {"name":"${name}","privacy_type":"closed"}
//	  """
//
// Wait until an http get responds with an expected result. The step fails with
// the last mismatch when the timeout expires:
//
//	Given I wait up to "5" seconds for a GET on path "/notifications" response "length" selection to match "1"
package cucumber

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^the path prefix is "([^"]*)"$`, s.theApiPrefixIs)
		ctx.Step(`^I (GET|POST|PUT|DELETE|PATCH|OPTION) path "([^"]*)"$`, s.sendHttpRequest)
		ctx.Step(`^I (GET|POST|PUT|DELETE|PATCH|OPTION) path "([^"]*)" with json body:$`, s.SendHttpRequestWithJsonBody)
		ctx.Step(`^I wait up to "([^"]*)" seconds for a GET on path "([^"]*)" response "([^"]*)" selection to match "([^"]*)"$`, s.iWaitUpToSecondsForAGETOnPathResponseSelectionToMatch)
	})
}

func (s *TestScenario) theApiPrefixIs(prefix string) error {
	s.PathPrefix = prefix
	return nil
}

func (s *TestScenario) sendHttpRequest(method, path string) error {
	return s.SendHttpRequestWithJsonBody(method, path, nil)
}

func (s *TestScenario) SendHttpRequestWithJsonBody(method, path string, jsonTxt *godog.DocString) error {
	return s.SendHttpRequestWithJsonBodyAndStyle(method, path, jsonTxt, true)
}

func (s *TestScenario) SendHttpRequestWithJsonBodyAndStyle(method, path string, jsonTxt *godog.DocString, expandJson bool) error {
	session := s.Session()

	body := &bytes.Buffer{}
	if jsonTxt != nil {
		content := jsonTxt.Content
		if expandJson {
			var err error
			if content, err = s.Expand(content); err != nil {
				return err
			}
		}
		body.WriteString(content)
	}
	expandedPath, err := s.Expand(path)
	if err != nil {
		return err
	}
	fullUrl := s.Suite.ApiURL + s.PathPrefix + expandedPath

	session.Resp = nil
	session.SetRespBytes(nil)

	ctx := session.Ctx
	if ctx == nil {
		ctx = s.Suite.Context
	}
	req, err := http.NewRequestWithContext(ctx, method, fullUrl, body)
	if err != nil {
		return err
	}

	// Headers set by a step apply to the next request only, except for
	// Authorization which sticks to the session.
	req.Header = session.Header
	session.Header = http.Header{}
	if auth := req.Header.Get("Authorization"); auth != "" {
		session.Header.Set("Authorization", auth)
	} else if session.TestUser != nil && session.TestUser.Token != nil {
		token := session.TestUser.Token
		req.Header.Set("Authorization", token.Type()+" "+token.AccessToken)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := session.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	session.Resp = resp
	session.SetRespBytes(data)
	return nil
}

// retryGet repeats a GET on path until check passes or timeout seconds
// have passed.
func (s *TestScenario) retryGet(timeout float64, path string, check func() error) error {
	wait := time.Duration(timeout * float64(time.Second))
	ctx, cancel := context.WithTimeout(s.Suite.Context, wait)
	defer cancel()
	session := s.Session()
	session.Ctx = ctx
	defer func() {
		session.Ctx = nil
	}()

	for {
		err := s.sendHttpRequest(http.MethodGet, path)
		if err == nil {
			if err = check(); err == nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %s: %w", wait, err)
		case <-time.After(wait / 10):
		}
	}
}

func (s *TestScenario) iWaitUpToSecondsForAGETOnPathResponseSelectionToMatch(timeout float64, path string, selection, expected string) error {
	return s.retryGet(timeout, path, func() error {
		return s.theSelectionFromTheResponseShouldMatch(selection, expected)
	})
}
