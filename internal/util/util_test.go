package util

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/errors"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.InitializeForTest()
	UseJSONFieldNames()
}

type createReq struct {
	Body  string   `json:"body" binding:"required,max=10"`
	Crops []string `json:"crops" binding:"max=2,dive,required"`
}

func perform(t *testing.T, h gin.HandlerFunc, body string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h(c)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestBindJSONValidationFields(t *testing.T) {
	w, env := perform(t, func(c *gin.Context) {
		var req createReq
		if BindJSON(c, &req) {
			RespondOK(c, http.StatusCreated, req)
		}
	}, `{"body":"this body is too long","crops":["wheat","rice","maize"]}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(errors.ErrValidation), env.Error.Code)
	assert.ElementsMatch(t, []errors.FieldError{
		{Field: "body", Rule: "max", Param: "10"},
		{Field: "crops", Rule: "max", Param: "2"},
	}, env.Error.Fields)
}

func TestBindJSONMalformed(t *testing.T) {
	w, env := perform(t, func(c *gin.Context) {
		var req createReq
		BindJSON(c, &req)
	}, `{"body":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errors.ErrBadRequest), env.Error.Code)
}

func TestRespondOKEnvelope(t *testing.T) {
	w, env := perform(t, func(c *gin.Context) {
		var req createReq
		if BindJSON(c, &req) {
			RespondOK(c, http.StatusCreated, gin.H{"body": req.Body})
		}
	}, `{"body":"namaste"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.Equal(t, map[string]interface{}{"body": "namaste"}, env.Data)
}

func TestGetUserIDFromContext(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	_, ok := GetUserIDFromContext(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ContextUserID, "u1")
	c.Set(ContextUserRole, "admin")
	id, ok := GetUserIDFromContext(c)
	assert.True(t, ok)
	assert.Equal(t, "u1", id)
	assert.Equal(t, "admin", UserRole(c))
}

func TestRetryableErrorsAreFlagged(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondWithAPIError(c, errors.AISafetyBlocked())

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.True(t, env.Error.Retryable)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 7, ParseInt("7", 1))
	assert.Equal(t, 1, ParseInt("x", 1))
	assert.Equal(t, []string{"wheat", "rice"}, ParseList(" wheat, ,rice"))
	assert.Nil(t, ParseList(""))
	assert.Equal(t, []string{"wheat", "rice"}, NormalizeList([]string{" Wheat", "rice", "WHEAT", ""}))
	assert.Equal(t, []string{"pestcontrol", "wheat"}, ExtractHashtags("Aphids on my #PestControl #wheat, #wheat! # #a"))
}
