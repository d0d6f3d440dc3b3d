package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/partup/partup/internal/events"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/models"
)

func (suite *HandlerTestSuite) TestCreateNetwork() {
	require := suite.Require()

	tt := []struct {
		name    string
		login   string
		request any
		code    int
	}{
		{
			name:    "anonymous users cannot create networks",
			request: models.AddNetwork{Name: "Amsterdam", PrivacyType: models.PrivacyPublic},
			code:    http.StatusUnauthorized,
		},
		{
			name:    "uppers cannot create networks",
			login:   TestUserID,
			request: models.AddNetwork{Name: "Amsterdam", PrivacyType: models.PrivacyPublic},
			code:    http.StatusUnauthorized,
		},
		{
			name:    "privacy type is required",
			login:   TestAdminID,
			request: map[string]string{"name": "Amsterdam"},
			code:    http.StatusBadRequest,
		},
		{
			name:    "unknown privacy types are internal errors",
			login:   TestAdminID,
			request: models.AddNetwork{Name: "Amsterdam", PrivacyType: "secret"},
			code:    http.StatusInternalServerError,
		},
		{
			name:    "admins create networks",
			login:   TestAdminID,
			request: models.AddNetwork{Name: "Amsterdam", PrivacyType: models.PrivacyClosed},
			code:    http.StatusCreated,
		},
	}
	for _, c := range tt {
		suite.T().Log(c.name)
		_, res, err := suite.ServeRequest(c.login, http.MethodPost, "/", "/", suite.api.CreateNetwork, suite.jsonBody(c.request))
		require.NoError(err)
		require.Equal(c.code, res.Code, "HTTP error: %s", res.Body.String())
	}

	list, err := suite.store.ListNetworks(context.Background(), models.NetworkQuery{})
	require.NoError(err)
	require.Len(list, 1)
	suite.Equal("amsterdam", list[0].Slug)
}

func (suite *HandlerTestSuite) TestInvalidPolicyBody() {
	_, res, err := suite.ServeRequest(TestAdminID, http.MethodPost, "/", "/", suite.api.CreateNetwork,
		suite.jsonBody(models.AddNetwork{Name: "Amsterdam", PrivacyType: "secret"}))
	suite.Require().NoError(err)
	var body models.InternalServerError
	suite.decode(res, &body)
	suite.Equal("invalid_privacy_type", body.Code)
}

func (suite *HandlerTestSuite) TestListAndAutocomplete() {
	closed := suite.createNetwork(models.PrivacyClosed)
	suite.createNetwork(models.PrivacyPublic)

	_, res, err := suite.ServeRequest(TestUserID, http.MethodGet, "/networks", "/networks?q=clos", suite.api.ListNetworks, nil)
	suite.Require().NoError(err)
	suite.Require().Equal(http.StatusOK, res.Code)
	var found []models.Network
	suite.decode(res, &found)
	suite.Require().Len(found, 1)
	suite.Equal(closed.ID, found[0].ID)

	_, res, err = suite.ServeRequest(TestUserID, http.MethodGet, "/networks", "/networks", suite.api.ListNetworks, nil)
	suite.Require().NoError(err)
	suite.decode(res, &found)
	suite.Empty(found)

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodGet, "/networks", "/networks", suite.api.ListNetworks, nil)
	suite.Require().NoError(err)
	suite.decode(res, &found)
	suite.Len(found, 2)
}

func (suite *HandlerTestSuite) TestGetUpdateDeleteNetwork() {
	require := suite.Require()
	n := suite.createNetwork(models.PrivacyPublic)

	_, res, err := suite.ServeRequest(TestUserID, http.MethodGet, "/networks/:id", "/networks/"+n.ID, suite.api.GetNetwork, nil)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	_, res, err = suite.ServeRequest(TestUserID, http.MethodGet, "/networks/:id", "/networks/missing", suite.api.GetNetwork, nil)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
	suite.JSONEq(`{"error":"NotFound","code":"network_not_found"}`, res.Body.String())

	name := "Partup Utrecht"
	_, res, err = suite.ServeRequest(TestUserID, http.MethodPatch, "/networks/:id", "/networks/"+n.ID, suite.api.UpdateNetwork,
		suite.jsonBody(models.UpdateNetwork{Name: &name}))
	require.NoError(err)
	require.Equal(http.StatusUnauthorized, res.Code)

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodPatch, "/networks/:id", "/networks/"+n.ID, suite.api.UpdateNetwork,
		suite.jsonBody(models.UpdateNetwork{Name: &name}))
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, res.Body.String())
	var updated models.Network
	suite.decode(res, &updated)
	suite.Equal("partup-utrecht", updated.Slug)

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodDelete, "/networks/:id", "/networks/"+n.ID, suite.api.DeleteNetwork, nil)
	require.NoError(err)
	require.Equal(http.StatusNoContent, res.Code, res.Body.String())
}

func (suite *HandlerTestSuite) TestDeleteNetworkErrors() {
	require := suite.Require()
	n := suite.createNetwork(models.PrivacyPublic)
	_, err := suite.service.Join(context.Background(), callerFor(TestUserID), n.ID)
	require.NoError(err)

	_, res, err := suite.ServeRequest(TestAdminID, http.MethodDelete, "/networks/:id", "/networks/"+n.ID, suite.api.DeleteNetwork, nil)
	require.NoError(err)
	require.Equal(http.StatusBadRequest, res.Code)
	suite.JSONEq(`{"error":"PreconditionFailed","code":"network_contains_uppers"}`, res.Body.String())

	require.NoError(suite.fflags.Set(fflags.NetworkRemoval, false))
	_, res, err = suite.ServeRequest(TestAdminID, http.MethodDelete, "/networks/:id", "/networks/"+n.ID, suite.api.DeleteNetwork, nil)
	require.NoError(err)
	require.Equal(http.StatusMethodNotAllowed, res.Code)
	var body models.NotAllowedError
	suite.decode(res, &body)
	suite.Equal("feature_disabled", body.Code)
}

func (suite *HandlerTestSuite) TestMembershipFlow() {
	require := suite.Require()
	n := suite.createNetwork(models.PrivacyClosed)

	join := func(login string) *httptest.ResponseRecorder {
		_, res, err := suite.ServeRequest(login, http.MethodPost, "/networks/:id/join", "/networks/"+n.ID+"/join", suite.api.JoinNetwork, nil)
		require.NoError(err)
		return res
	}
	accept := func(login, uid string) *httptest.ResponseRecorder {
		_, res, err := suite.ServeRequest(login, http.MethodPost, "/networks/:id/pending/:uid/accept",
			"/networks/"+n.ID+"/pending/"+uid+"/accept", suite.api.AcceptPendingUpper, nil)
		require.NoError(err)
		return res
	}

	res := join(TestUserID)
	require.Equal(http.StatusOK, res.Code)
	var result models.MembershipResult
	suite.decode(res, &result)
	suite.Equal("pending", result.Outcome)

	res = accept(TestUser2ID, TestUserID)
	require.Equal(http.StatusUnauthorized, res.Code)

	res = accept(TestAdminID, TestUserID)
	require.Equal(http.StatusOK, res.Code)
	suite.decode(res, &result)
	suite.Equal("accepted", result.Outcome)

	res = accept(TestAdminID, TestUserID)
	require.Equal(http.StatusConflict, res.Code)
	suite.JSONEq(`{"error":"AlreadyMember","code":"user_is_already_member_of_network"}`, res.Body.String())

	res = join(TestUser2ID)
	require.Equal(http.StatusOK, res.Code)
	_, res, err := suite.ServeRequest(TestAdminID, http.MethodPost, "/networks/:id/pending/:uid/reject",
		"/networks/"+n.ID+"/pending/"+TestUser2ID+"/reject", suite.api.RejectPendingUpper, nil)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	suite.decode(res, &result)
	suite.Equal("rejected", result.Outcome)

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodPost, "/networks/:id/leave", "/networks/"+n.ID+"/leave", suite.api.LeaveNetwork, nil)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)

	_, res, err = suite.ServeRequest(TestUser2ID, http.MethodPost, "/networks/:id/leave", "/networks/"+n.ID+"/leave", suite.api.LeaveNetwork, nil)
	require.NoError(err)
	require.Equal(http.StatusBadRequest, res.Code)

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodDelete, "/networks/:id/uppers/:uid",
		"/networks/"+n.ID+"/uppers/"+TestUserID, suite.api.RemoveUpper, nil)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	suite.decode(res, &result)
	suite.Equal("removed", result.Outcome)

	list, err := suite.store.UndeliveredEvents(context.Background(), 100)
	require.NoError(err)
	names := []string{}
	for _, e := range list {
		names = append(names, e.Name)
	}
	suite.Equal(events.NetworkInserted, names[0])
	suite.Len(names, 6)
}

func (suite *HandlerTestSuite) TestInvitations() {
	require := suite.Require()
	n := suite.createNetwork(models.PrivacyInvitational)
	uri := "/networks/" + n.ID + "/invitations"

	_, res, err := suite.ServeRequest(TestUserID, http.MethodPost, "/networks/:id/invitations", uri, suite.api.CreateUpperInvitation,
		suite.jsonBody(models.AddUpperInvite{InviteeID: TestUser2ID}))
	require.NoError(err)
	require.Equal(http.StatusUnauthorized, res.Code)

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodPost, "/networks/:id/invitations", uri, suite.api.CreateUpperInvitation,
		suite.jsonBody(models.AddUpperInvite{InviteeID: TestUserID}))
	require.NoError(err)
	require.Equal(http.StatusCreated, res.Code, res.Body.String())

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodPost, "/networks/:id/invitations", uri, suite.api.CreateUpperInvitation,
		suite.jsonBody(models.AddUpperInvite{InviteeID: TestUserID}))
	require.NoError(err)
	require.Equal(http.StatusConflict, res.Code)

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodPost, "/networks/:id/invitations", uri, suite.api.CreateUpperInvitation,
		suite.jsonBody(models.AddUpperInvite{InviteeID: "nobody"}))
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodPost, "/networks/:id/invitations/email", uri+"/email", suite.api.CreateEmailInvitation,
		suite.jsonBody(models.AddEmailInvite{Email: "not-an-email"}))
	require.NoError(err)
	require.Equal(http.StatusBadRequest, res.Code)

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodPost, "/networks/:id/invitations/email", uri+"/email", suite.api.CreateEmailInvitation,
		suite.jsonBody(models.AddEmailInvite{Email: "pete@example.com", Name: "Pete"}))
	require.NoError(err)
	require.Equal(http.StatusCreated, res.Code, res.Body.String())

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodPost, "/networks/:id/invitations/email", uri+"/email", suite.api.CreateEmailInvitation,
		suite.jsonBody(models.AddEmailInvite{Email: "PETE@example.com", Name: "Pete"}))
	require.NoError(err)
	require.Equal(http.StatusConflict, res.Code)
	suite.JSONEq(`{"error":"DuplicateInvite","code":"email_is_already_invited_to_network"}`, res.Body.String())

	_, res, err = suite.ServeRequest(TestAdminID, http.MethodGet, "/networks/:id/invitations", uri, suite.api.ListInvitations, nil)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	var invites []models.Invite
	suite.decode(res, &invites)
	suite.Len(invites, 2)

	require.NoError(suite.fflags.Set(fflags.EmailInvites, false))
	_, res, err = suite.ServeRequest(TestAdminID, http.MethodPost, "/networks/:id/invitations/email", uri+"/email", suite.api.CreateEmailInvitation,
		suite.jsonBody(models.AddEmailInvite{Email: "kim@example.com"}))
	require.NoError(err)
	require.Equal(http.StatusMethodNotAllowed, res.Code)
}
