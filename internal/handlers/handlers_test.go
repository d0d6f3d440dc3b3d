package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/partup/partup/internal/database"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/networks"
	"github.com/partup/partup/internal/signalbus"
	"github.com/partup/partup/internal/store/gormstore"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const (
	TestAdminID = "0d6e5e2c-7c43-4e0e-9f4e-1d7c8f8e4a11"
	TestUserID  = "f606de8d-092d-4606-b981-80ce9f5a3b2a"
	TestUser2ID = "5f4a1e02-4b6f-4be4-a7f3-2de0e0b1c9f3"
)

type HandlerTestSuite struct {
	suite.Suite
	logger  *zap.SugaredLogger
	store   *gormstore.Store
	fflags  *fflags.FFlags
	service *networks.Service
	api     *API
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (suite *HandlerTestSuite) SetupTest() {
	suite.logger = zaptest.NewLogger(suite.T()).Sugar()
	db, err := database.NewTestDatabase(suite.logger)
	suite.Require().NoError(err)
	suite.store, err = gormstore.New(db)
	suite.Require().NoError(err)
	suite.fflags = fflags.NewFFlags(suite.logger)
	suite.service = networks.NewService(suite.logger, suite.store, signalbus.NewSignalBus(), suite.fflags)
	suite.api, err = NewAPI(context.Background(), suite.logger, suite.service, suite.store, suite.fflags)
	suite.Require().NoError(err)

	ctx := context.Background()
	for _, u := range []models.User{
		{ID: TestAdminID, UserName: "admin", Email: "admin@example.com", Admin: true},
		{ID: TestUserID, UserName: "testuser", Email: "testuser@example.com"},
		{ID: TestUser2ID, UserName: "testuser2", Email: "testuser2@example.com"},
	} {
		suite.Require().NoError(suite.service.SyncUser(ctx, u))
	}
}

func callerFor(userID string) *networks.Caller {
	if userID == "" {
		return nil
	}
	return &networks.Caller{ID: userID, Admin: userID == TestAdminID}
}

// ServeRequest runs handler for one request made by userID. An empty userID
// makes an anonymous request.
func (suite *HandlerTestSuite) ServeRequest(userID, method, path, uri string, handler func(*gin.Context), body io.Reader) (*http.Request, *httptest.ResponseRecorder, error) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if caller := callerFor(userID); caller != nil {
			c.Set(AuthCaller, caller)
		}
		c.Next()
	})
	r.Any(path, handler)
	req, err := http.NewRequest(method, uri, body)
	if err != nil {
		return req, httptest.NewRecorder(), err
	}
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return req, res, nil
}

func (suite *HandlerTestSuite) jsonBody(v any) io.Reader {
	data, err := json.Marshal(v)
	suite.Require().NoError(err)
	return bytes.NewReader(data)
}

func (suite *HandlerTestSuite) decode(res *httptest.ResponseRecorder, v any) {
	suite.Require().NoError(json.Unmarshal(res.Body.Bytes(), v), res.Body.String())
}

func (suite *HandlerTestSuite) createNetwork(privacy models.PrivacyType) models.Network {
	n, err := suite.service.Create(context.Background(), callerFor(TestAdminID), models.AddNetwork{
		Name:        "Partup " + string(privacy),
		PrivacyType: privacy,
	})
	suite.Require().NoError(err)
	return n
}

func (suite *HandlerTestSuite) TestLiveAndReady() {
	_, res, err := suite.ServeRequest("", http.MethodGet, "/live", "/live", suite.api.Live, nil)
	suite.Require().NoError(err)
	suite.Equal(http.StatusOK, res.Code)

	_, res, err = suite.ServeRequest("", http.MethodGet, "/ready", "/ready", suite.api.Ready, nil)
	suite.Require().NoError(err)
	suite.Equal(http.StatusOK, res.Code)
	suite.JSONEq(`{"status":"UP"}`, res.Body.String())
}

func (suite *HandlerTestSuite) TestFeatureFlags() {
	_, res, err := suite.ServeRequest(TestUserID, http.MethodGet, "/fflags", "/fflags", suite.api.ListFeatureFlags, nil)
	suite.Require().NoError(err)
	suite.Equal(http.StatusOK, res.Code)
	suite.JSONEq(`{"email-invites":true,"network-removal":true}`, res.Body.String())

	suite.Require().NoError(suite.fflags.Set(fflags.NetworkRemoval, false))
	_, res, err = suite.ServeRequest(TestUserID, http.MethodGet, "/fflags/:name", "/fflags/network-removal", suite.api.GetFeatureFlag, nil)
	suite.Require().NoError(err)
	suite.Equal(http.StatusOK, res.Code)
	suite.JSONEq(`{"network-removal":false}`, res.Body.String())

	_, res, err = suite.ServeRequest(TestUserID, http.MethodGet, "/fflags/:name", "/fflags/bogus", suite.api.GetFeatureFlag, nil)
	suite.Require().NoError(err)
	suite.Equal(http.StatusNotFound, res.Code)
}

func (suite *HandlerTestSuite) TestGetCurrentUser() {
	_, res, err := suite.ServeRequest(TestUserID, http.MethodGet, "/users/me", "/users/me", suite.api.GetCurrentUser, nil)
	suite.Require().NoError(err)
	suite.Require().Equal(http.StatusOK, res.Code, res.Body.String())
	var user models.User
	suite.decode(res, &user)
	suite.Equal("testuser", user.UserName)

	_, res, err = suite.ServeRequest("", http.MethodGet, "/users/me", "/users/me", suite.api.GetCurrentUser, nil)
	suite.Require().NoError(err)
	suite.Equal(http.StatusUnauthorized, res.Code)
	suite.JSONEq(`{"error":"Unauthorized","code":"unauthorized"}`, res.Body.String())
}
