package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/internal/ac"
	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/monitor"
	"backend/internal/registry"
	"backend/internal/types"
)

func newTestRouter(t *testing.T) (*gin.Engine, *registry.Registry, *billing.Ledger) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	reg := registry.New(nil)
	ledger := billing.NewLedger(nil, nil)
	reg.AddRoom(&registry.Room{
		ID:          "101",
		DailyRate:   288.0,
		Occupancy:   types.OccupancyEmpty,
		Status:      types.StatusOff,
		Mode:        types.ModeCool,
		FanSpeed:    types.SpeedMid,
		TargetTemp:  25.0,
		CurrentTemp: 32.0,
	})
	reg.AddRoom(&registry.Room{
		ID:          "102",
		DailyRate:   388.0,
		Occupancy:   types.OccupancyEmpty,
		Status:      types.StatusOff,
		Mode:        types.ModeCool,
		FanSpeed:    types.SpeedMid,
		TargetTemp:  25.0,
		CurrentTemp: 29.0,
	})

	svc := ac.NewService(cfg, reg, ledger, nil)
	mon := monitor.NewMonitor(reg, nil, time.Minute, time.Second)
	rh := NewRoomHandler(reg, svc)
	dh := NewDeskHandler(svc, nil, nil)
	mh := NewMonitorHandler(mon)

	router := gin.New()
	api := router.Group("/api")
	api.GET("/room/:id/", rh.GetRoom)
	api.GET("/rooms/", rh.ListRooms)
	api.POST("/control/:id/", rh.Control)
	api.POST("/checkin/", dh.CheckIn)
	api.POST("/checkout/", dh.CheckOut)
	api.GET("/bills/:id/", dh.History)
	api.GET("/scheduler/", mh.Queues)
	return router, reg, ledger
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRoomEndpoints(t *testing.T) {
	t.Run("Get Room", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		w := doJSON(router, http.MethodGet, "/api/room/101/", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		assert.Equal(t, "101", body["room_id"])
		assert.Equal(t, "OFF", body["status"])
		assert.Equal(t, "EMPTY", body["occupancy_status"])
		assert.Equal(t, 32.0, body["current_temp"])
		assert.Equal(t, 0.0, body["fee"])
	})

	t.Run("Get Unknown Room", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		w := doJSON(router, http.MethodGet, "/api/room/999/", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "error", decode(t, w)["status"])
	})

	t.Run("List Only Occupied", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		doJSON(router, http.MethodPost, "/api/checkin/", gin.H{"room_id": "101", "guest_id": "g1"})

		w := doJSON(router, http.MethodGet, "/api/rooms/", nil)
		require.Equal(t, http.StatusOK, w.Code)
		rooms := decode(t, w)["rooms"].([]interface{})
		require.Len(t, rooms, 1)
		assert.Equal(t, "101", rooms[0].(map[string]interface{})["room_id"])
	})
}

func TestControlEndpoint(t *testing.T) {
	t.Run("Power On", func(t *testing.T) {
		router, reg, _ := newTestRouter(t)
		doJSON(router, http.MethodPost, "/api/checkin/", gin.H{"room_id": "101", "guest_id": "g1"})

		w := doJSON(router, http.MethodPost, "/api/control/101/", gin.H{"is_on": true})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decode(t, w)["status"])

		r, err := reg.Get("101")
		require.NoError(t, err)
		assert.True(t, r.IsOn)
		assert.Equal(t, types.StatusWaiting, r.Status)
	})

	t.Run("Power On Empty Room", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		w := doJSON(router, http.MethodPost, "/api/control/101/", gin.H{"is_on": true})
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Target Out Of Range", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		doJSON(router, http.MethodPost, "/api/checkin/", gin.H{"room_id": "101", "guest_id": "g1"})
		doJSON(router, http.MethodPost, "/api/control/101/", gin.H{"is_on": true})

		w := doJSON(router, http.MethodPost, "/api/control/101/", gin.H{"target_temp": 16.0})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "error", decode(t, w)["status"])
	})

	t.Run("Malformed Body", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		req := httptest.NewRequest(http.MethodPost, "/api/control/101/", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeskEndpoints(t *testing.T) {
	t.Run("Check In Then Duplicate", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		w := doJSON(router, http.MethodPost, "/api/checkin/", gin.H{"room_id": "101", "guest_id": "g1"})
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(router, http.MethodPost, "/api/checkin/", gin.H{"room_id": "101", "guest_id": "g2"})
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Room occupied", decode(t, w)["message"])
	})

	t.Run("Check In Requires Guest", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		w := doJSON(router, http.MethodPost, "/api/checkin/", gin.H{"room_id": "101"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Check Out Returns Bill", func(t *testing.T) {
		router, _, ledger := newTestRouter(t)
		doJSON(router, http.MethodPost, "/api/checkin/", gin.H{"room_id": "101", "guest_id": "g1"})

		// 模拟一段已结束的服务: MID 20 分钟 = 10 元
		start := time.Now().Add(-20 * time.Minute)
		ledger.OpenSession("101", start, types.ModeCool, types.SpeedMid)
		ledger.Accrue("101", 3600)
		ledger.CloseSession("101", time.Now())

		w := doJSON(router, http.MethodPost, "/api/checkout/", gin.H{"room_id": "101"})
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		bill := body["bill"].(map[string]interface{})
		assert.Equal(t, 1.0, bill["days"])
		assert.Equal(t, 288.0, bill["daily_rate"])
		assert.Equal(t, 288.0, bill["accommodation_fee"])
		assert.Equal(t, 10.0, bill["ac_fee"])
		assert.Equal(t, 298.0, bill["total"])

		details := bill["ac_details"].([]interface{})
		require.Len(t, details, 1)
		detail := details[0].(map[string]interface{})
		assert.Equal(t, "MID", detail["fan"])
		assert.Equal(t, 10.0, detail["fee"])
	})

	t.Run("Bill History Without Store", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		w := doJSON(router, http.MethodGet, "/api/bills/101/", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode(t, w)["bills"])
	})

	t.Run("Check Out Empty Room", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		w := doJSON(router, http.MethodPost, "/api/checkout/", gin.H{"room_id": "101"})
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Room not occupied", decode(t, w)["message"])
	})
}

func TestSchedulerEndpoint(t *testing.T) {
	router, reg, _ := newTestRouter(t)
	doJSON(router, http.MethodPost, "/api/checkin/", gin.H{"room_id": "101", "guest_id": "g1"})
	doJSON(router, http.MethodPost, "/api/control/101/", gin.H{"is_on": true})
	// 模拟调度器放行
	reg.Update("101", func(r *registry.Room) error {
		r.Status = types.StatusServing
		r.ServedTicks = 5
		return nil
	})

	w := doJSON(router, http.MethodGet, "/api/scheduler/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	serving := body["serving"].([]interface{})
	require.Len(t, serving, 1)
	entry := serving[0].(map[string]interface{})
	assert.Equal(t, "101", entry["room_id"])
	assert.Equal(t, 5.0, entry["service_time"])

	metrics := body["metrics"].(map[string]interface{})
	assert.Equal(t, 1.0, metrics["serving"])
	assert.Equal(t, 2.0, metrics["total_rooms"])
}
