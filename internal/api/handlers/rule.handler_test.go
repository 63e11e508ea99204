package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorus-platform/process-monitor/internal/models"
)

func newRuleRouter(env *handlerEnv) *gin.Engine {
	h := NewRuleHandler(env.rules, env.log)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.GET("/alert-rules", h.GetRules)
	v1.POST("/alert-rules", h.CreateRule)
	v1.GET("/alert-rules/:id", h.GetRule)
	v1.PUT("/alert-rules/:id", h.UpdateRule)
	v1.DELETE("/alert-rules/:id", h.DeleteRule)
	return router
}

func systemRuleBody(name string, threshold float64) map[string]interface{} {
	return map[string]interface{}{
		"name":      name,
		"rule_type": models.RuleTypeSystemMetric,
		"severity":  models.SeverityHigh,
		"condition": map[string]interface{}{
			"metric_type": "cpu_usage_percent",
			"operator":    ">",
			"threshold":   threshold,
		},
	}
}

func TestRuleHandler_CRUD(t *testing.T) {
	env := newHandlerEnv(t)
	router := newRuleRouter(env)

	w := performRequest(router, http.MethodPost, "/api/v1/alert-rules", systemRuleBody("high-cpu", 90))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := dataField(t, w)
	id, ok := created["id"].(string)
	require.True(t, ok)
	assert.Equal(t, float64(15), created["cooldown_minutes"])
	assert.Equal(t, true, created["is_active"])

	w = performRequest(router, http.MethodGet, "/api/v1/alert-rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataField(t, w)["count"])

	w = performRequest(router, http.MethodGet, "/api/v1/alert-rules/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	fetched := dataField(t, w)
	condition, ok := fetched["condition"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "cpu_usage_percent", condition["metric_type"])
	assert.Equal(t, float64(90), condition["threshold"])

	w = performRequest(router, http.MethodPut, "/api/v1/alert-rules/"+id, map[string]interface{}{
		"severity":  models.SeverityCritical,
		"is_active": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := dataField(t, w)
	assert.Equal(t, models.SeverityCritical, updated["severity"])
	assert.Equal(t, false, updated["is_active"])

	w = performRequest(router, http.MethodDelete, "/api/v1/alert-rules/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Alert rule deleted successfully", body["message"])

	w = performRequest(router, http.MethodGet, "/api/v1/alert-rules/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleHandler_DuplicateName(t *testing.T) {
	env := newHandlerEnv(t)
	router := newRuleRouter(env)

	w := performRequest(router, http.MethodPost, "/api/v1/alert-rules", systemRuleBody("dup", 90))
	require.Equal(t, http.StatusCreated, w.Code)

	w = performRequest(router, http.MethodPost, "/api/v1/alert-rules", systemRuleBody("dup", 95))
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	// Renaming onto a taken name conflicts the same way.
	w = performRequest(router, http.MethodPost, "/api/v1/alert-rules", systemRuleBody("other", 80))
	require.Equal(t, http.StatusCreated, w.Code)
	otherID := dataField(t, w)["id"].(string)

	w = performRequest(router, http.MethodPut, "/api/v1/alert-rules/"+otherID, map[string]interface{}{
		"name": "dup",
	})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestRuleHandler_Validation(t *testing.T) {
	env := newHandlerEnv(t)
	router := newRuleRouter(env)

	// Condition branch does not match the rule type
	w := performRequest(router, http.MethodPost, "/api/v1/alert-rules", map[string]interface{}{
		"name":      "mismatched",
		"rule_type": models.RuleTypeSystemMetric,
		"severity":  models.SeverityHigh,
		"condition": map[string]interface{}{"service_name": "chat-service"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// Unknown operator
	body := systemRuleBody("bad-op", 90)
	body["condition"].(map[string]interface{})["operator"] = "~="
	w = performRequest(router, http.MethodPost, "/api/v1/alert-rules", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown rule id formats
	w = performRequest(router, http.MethodGet, "/api/v1/alert-rules/nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = performRequest(router, http.MethodDelete, "/api/v1/alert-rules/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Bad is_active filter value
	w = performRequest(router, http.MethodGet, "/api/v1/alert-rules?is_active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuleHandler_ListFilters(t *testing.T) {
	env := newHandlerEnv(t)
	router := newRuleRouter(env)

	w := performRequest(router, http.MethodPost, "/api/v1/alert-rules", systemRuleBody("active-rule", 90))
	require.Equal(t, http.StatusCreated, w.Code)

	body := systemRuleBody("inactive-rule", 95)
	body["is_active"] = false
	w = performRequest(router, http.MethodPost, "/api/v1/alert-rules", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = performRequest(router, http.MethodGet, "/api/v1/alert-rules?is_active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataField(t, w)
	assert.Equal(t, float64(1), data["count"])

	rules, ok := data["rules"].([]interface{})
	require.True(t, ok)
	require.Len(t, rules, 1)
	assert.Equal(t, "active-rule", rules[0].(map[string]interface{})["name"])
}
