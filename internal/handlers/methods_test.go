package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/partup/partup/internal/models"
)

func (suite *HandlerTestSuite) callMethod(login, name, args string) *httptest.ResponseRecorder {
	_, res, err := suite.ServeRequest(login, http.MethodPost, "/methods/:name", "/methods/"+name, suite.api.CallMethod, strings.NewReader(args))
	suite.Require().NoError(err)
	return res
}

func (suite *HandlerTestSuite) TestMethodNames() {
	suite.Equal([]string{
		"networks.accept",
		"networks.autocomplete",
		"networks.insert",
		"networks.invite_by_email",
		"networks.invite_existing_upper",
		"networks.join",
		"networks.leave",
		"networks.reject",
		"networks.remove",
		"networks.remove_upper",
		"networks.update",
	}, suite.api.MethodNames())
}

func (suite *HandlerTestSuite) TestMethodArgumentValidation() {
	n := suite.createNetwork(models.PrivacyPublic)

	tt := []struct {
		name   string
		method string
		args   string
		code   int
		body   string
	}{
		{
			name:   "unknown method",
			method: "networks.explode",
			args:   `[]`,
			code:   http.StatusNotFound,
		},
		{
			name:   "arguments must be an array",
			method: "networks.join",
			args:   `{"networkId":"x"}`,
			code:   http.StatusBadRequest,
			body:   `{"error":"request json is invalid","code":"invalid_payload"}`,
		},
		{
			name:   "too few arguments",
			method: "networks.accept",
			args:   `["` + n.ID + `"]`,
			code:   http.StatusBadRequest,
			body:   `{"error":"networks.accept expects 2 arguments, got 1","code":"invalid_argument_count"}`,
		},
		{
			name:   "too many arguments",
			method: "networks.join",
			args:   `["` + n.ID + `", "extra"]`,
			code:   http.StatusBadRequest,
		},
		{
			name:   "number instead of string",
			method: "networks.join",
			args:   `[42]`,
			code:   http.StatusBadRequest,
			body:   `{"error":"argument 1 must be a string","code":"invalid_field","field":"networkId"}`,
		},
		{
			name:   "null instead of string",
			method: "networks.leave",
			args:   `[null]`,
			code:   http.StatusBadRequest,
		},
		{
			name:   "string instead of object",
			method: "networks.update",
			args:   `["` + n.ID + `", "name"]`,
			code:   http.StatusBadRequest,
			body:   `{"error":"argument 2 must be a object","code":"invalid_field","field":"fields"}`,
		},
		{
			name:   "unknown object fields",
			method: "networks.insert",
			args:   `[{"name":"x","privacy_type":"public","admin_id":"me"}]`,
			code:   http.StatusBadRequest,
		},
	}
	for _, c := range tt {
		suite.T().Log(c.name)
		res := suite.callMethod(TestAdminID, c.method, c.args)
		suite.Require().Equal(c.code, res.Code, "HTTP error: %s", res.Body.String())
		if c.body != "" {
			suite.JSONEq(c.body, res.Body.String())
		}
	}

	// nothing reached the core
	stored, err := suite.store.FindNetwork(context.Background(), n.ID)
	suite.Require().NoError(err)
	suite.Equal([]string{TestAdminID}, []string(stored.Uppers))
	list, err := suite.store.ListNetworks(context.Background(), models.NetworkQuery{})
	suite.Require().NoError(err)
	suite.Len(list, 1)
}

func (suite *HandlerTestSuite) TestMethodsDriveTheCommands() {
	require := suite.Require()

	res := suite.callMethod(TestAdminID, "networks.insert", `[{"name":"Partup Leiden","privacy_type":"closed"}]`)
	require.Equal(http.StatusOK, res.Code, res.Body.String())
	var created struct {
		Result models.Network `json:"result"`
	}
	require.NoError(json.Unmarshal(res.Body.Bytes(), &created))
	id := created.Result.ID
	require.NotEmpty(id)
	suite.Equal("partup-leiden", created.Result.Slug)

	res = suite.callMethod(TestUserID, "networks.join", `["`+id+`"]`)
	require.Equal(http.StatusOK, res.Code, res.Body.String())
	suite.JSONEq(`{"result":{"network_id":"`+id+`","upper_id":"`+TestUserID+`","outcome":"pending"}}`, res.Body.String())

	res = suite.callMethod(TestAdminID, "networks.accept", `["`+id+`","`+TestUserID+`"]`)
	require.Equal(http.StatusOK, res.Code, res.Body.String())

	res = suite.callMethod(TestAdminID, "networks.accept", `["`+id+`","`+TestUserID+`"]`)
	require.Equal(http.StatusConflict, res.Code)

	res = suite.callMethod(TestUserID, "networks.invite_existing_upper", `["`+id+`","`+TestUser2ID+`"]`)
	require.Equal(http.StatusOK, res.Code, res.Body.String())

	res = suite.callMethod(TestUserID, "networks.invite_by_email", `["`+id+`","kim@example.com","Kim"]`)
	require.Equal(http.StatusOK, res.Code, res.Body.String())

	res = suite.callMethod(TestUser2ID, "networks.autocomplete", `["leid"]`)
	require.Equal(http.StatusOK, res.Code)
	var found struct {
		Result []models.Network `json:"result"`
	}
	require.NoError(json.Unmarshal(res.Body.Bytes(), &found))
	require.Len(found.Result, 1)

	res = suite.callMethod(TestAdminID, "networks.update", `["`+id+`",{"description":"<p>Uppers in Leiden</p>"}]`)
	require.Equal(http.StatusOK, res.Code, res.Body.String())

	res = suite.callMethod(TestUserID, "networks.leave", `["`+id+`"]`)
	require.Equal(http.StatusOK, res.Code, res.Body.String())

	res = suite.callMethod(TestAdminID, "networks.remove_upper", `["`+id+`","`+TestUserID+`"]`)
	require.Equal(http.StatusBadRequest, res.Code)

	res = suite.callMethod(TestAdminID, "networks.reject", `["`+id+`","`+TestUser2ID+`"]`)
	require.Equal(http.StatusOK, res.Code)
	suite.Contains(res.Body.String(), `"not_pending"`)

	res = suite.callMethod(TestAdminID, "networks.remove", `["`+id+`"]`)
	require.Equal(http.StatusOK, res.Code, res.Body.String())
	suite.JSONEq(`{"result":null}`, res.Body.String())

	_, err := suite.store.FindNetwork(context.Background(), id)
	suite.Error(err)
}
