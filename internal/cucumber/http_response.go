// Assert response code is correct:
//
//	Then the response code should be 202
//
// Assert the error code carried in the body of a failed request:
//
//	Then the response error code should be "user_is_already_member_of_network"
//
// Assert that a json field of the response body is correct.  This uses a http://github.com/itchyny/gojq expression to select the json field of the
// response:
//
//	Then the ".outcome" selection from the response should match "pending"
//
// Assert that response json matches the provided json.  Differences in json formatting and field order are ignored.:
//
//	Then the response should match json:
//	  """
//	  {
//	      "id": "${network_id}",
//	  }
//	  """
//
// Assert that the response matches the provided yaml document:
//
//	Then the response should match yaml:
//	  """
//	  email-invites: true
//	  """
//
// Assert that response json contains the provided fields:
//
//	Then the response should contain json:
//	  """
//	  {"privacy_type": "closed"}
//	  """
//
// Stores a json field of the response body in a scenario variable:
//
//	Given I store the ".id" selection from the response as ${network_id}
//
// Assert that a json field of the response body is correct matches the provided json:
//
//	Then the ".uppers" selection from the response should match json:
//	  """
//	  ["${anna.Subject}"]
//	  """
package cucumber

import (
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
	"github.com/itchyny/gojq"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^the response code should be (\d+)$`, s.theResponseCodeShouldBe)
		ctx.Step(`^the response error code should be "([^"]*)"$`, s.theResponseErrorCodeShouldBe)
		ctx.Step(`^the response should match json:$`, s.TheResponseShouldMatchJsonDoc)
		ctx.Step(`^the response should contain json:$`, s.theResponseShouldContainJson)
		ctx.Step(`^the response should match yaml:$`, s.theResponseShouldMatchYamlDoc)
		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^"]*)}$`, s.iStoreTheSelectionFromTheResponseAs)
		ctx.Step(`^the "(.*)" selection from the response should match "([^"]*)"$`, s.theSelectionFromTheResponseShouldMatch)
		ctx.Step(`^the "([^"]*)" selection from the response should match json:$`, s.theSelectionFromTheResponseShouldMatchJson)
	})
}

func (s *TestScenario) theResponseCodeShouldBe(expected int) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no request has been sent yet")
	}
	if actual := session.Resp.StatusCode; expected != actual {
		return fmt.Errorf("expected response code to be: %d, but actual is: %d, body: %s", expected, actual, string(session.RespBytes))
	}
	return nil
}

func (s *TestScenario) theResponseErrorCodeShouldBe(expected string) error {
	return s.theSelectionFromTheResponseShouldMatch(".code", expected)
}

func (s *TestScenario) TheResponseShouldMatchJsonDoc(expected *godog.DocString) error {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JsonMustMatch(string(session.RespBytes), expected.Content, true)
}

func (s *TestScenario) theResponseShouldMatchYamlDoc(expected *godog.DocString) error {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a body")
	}
	// json is valid yaml, so the response needs no conversion
	return s.YamlMustMatch(string(session.RespBytes), expected.Content, true)
}

func (s *TestScenario) theResponseShouldContainJson(expected *godog.DocString) error {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JsonMustContain(string(session.RespBytes), expected.Content, true)
}

// selectFromResponse returns the first value selector yields on the last
// response body.
func (s *TestScenario) selectFromResponse(selector string) (interface{}, error) {
	doc, err := s.Session().RespJson()
	if err != nil {
		return nil, err
	}
	query, err := gojq.Parse(selector)
	if err != nil {
		return nil, err
	}
	iter := query.Run(doc)
	next, found := iter.Next()
	if !found {
		return nil, fmt.Errorf("expected JSON does not have node that matches selector: %s", selector)
	}
	if err, ok := next.(error); ok {
		return nil, fmt.Errorf("selector %s failed: %w", selector, err)
	}
	return next, nil
}

func (s *TestScenario) iStoreTheSelectionFromTheResponseAs(selector string, as string) error {
	value, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	switch value.(type) {
	case map[string]interface{}, []interface{}:
		bytes, err := json.Marshal(value)
		if err != nil {
			return err
		}
		s.Variables[as] = string(bytes)
	default:
		s.Variables[as] = fmt.Sprintf("%v", value)
	}
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatch(selector string, expected string) error {
	actual, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	text := "null" // use null to represent missing value
	if actual != nil {
		text = fmt.Sprintf("%v", actual)
	}
	if text != expected {
		return fmt.Errorf("selected JSON does not match. expected: %v, actual: %v", expected, text)
	}
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatchJson(selector string, expected *godog.DocString) error {
	value, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	actual, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.JsonMustMatch(string(actual), expected.Content, true)
}
