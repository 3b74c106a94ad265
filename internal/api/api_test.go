package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
	"github.com/thatsimonsguy/general-thermostat/internal/preset"
	"github.com/thatsimonsguy/general-thermostat/internal/thermostat"
)

type fakeThermostat struct {
	view  thermostat.View
	err   error
	calls []string
}

func (f *fakeThermostat) State() thermostat.View { return f.view }

func (f *fakeThermostat) SetHVACMode(_ context.Context, mode string) error {
	f.calls = append(f.calls, "hvac_mode:"+mode)
	if f.err == nil {
		f.view.HVACMode = model.HVACMode(mode)
	}
	return f.err
}

func (f *fakeThermostat) SetTemperature(_ context.Context, temp float64) error {
	f.calls = append(f.calls, fmt.Sprintf("temperature:%v", temp))
	if f.err == nil {
		f.view.TargetTemperature = temp
	}
	return f.err
}

func (f *fakeThermostat) SetPresetMode(_ context.Context, name string) error {
	f.calls = append(f.calls, "preset_mode:"+name)
	return f.err
}

func (f *fakeThermostat) SetPresetTemperature(_ context.Context, name string, temp float64) error {
	f.calls = append(f.calls, fmt.Sprintf("preset_temperature:%s:%v", name, temp))
	return f.err
}

func (f *fakeThermostat) ResetPresetTemperature(_ context.Context, name string) error {
	f.calls = append(f.calls, "reset:"+name)
	return f.err
}

func (f *fakeThermostat) SetTolerance(_ context.Context, cold, hot *float64) error {
	call := "tolerance"
	if cold != nil {
		call += fmt.Sprintf(":cold=%v", *cold)
	}
	if hot != nil {
		call += fmt.Sprintf(":hot=%v", *hot)
	}
	f.calls = append(f.calls, call)
	return f.err
}

func newFake() *fakeThermostat {
	return &fakeThermostat{view: thermostat.View{
		Name:              "office",
		TargetTemperature: 20,
		HVACMode:          model.ModeHeat,
		MinTemp:           7,
		MaxTemp:           35,
	}}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, NewServer(newFake(), nil).Router(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestGetState(t *testing.T) {
	rec := do(t, NewServer(newFake(), nil).Router(), http.MethodGet, "/api/thermostat", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view thermostat.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "office", view.Name)
	assert.Equal(t, model.ModeHeat, view.HVACMode)
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		err      error
		wantCode int
		wantCall string
	}{
		{"set mode", http.MethodPut, "/api/thermostat/hvac_mode", `{"mode":"off"}`, nil, http.StatusOK, "hvac_mode:off"},
		{"unknown mode", http.MethodPut, "/api/thermostat/hvac_mode", `{"mode":"dry"}`, nil, http.StatusBadRequest, ""},
		{"unsupported mode", http.MethodPut, "/api/thermostat/hvac_mode", `{"mode":"cool"}`, thermostat.ErrUnsupportedMode, http.StatusBadRequest, "hvac_mode:cool"},
		{"bad json", http.MethodPut, "/api/thermostat/hvac_mode", `{`, nil, http.StatusBadRequest, ""},
		{"set temperature", http.MethodPut, "/api/thermostat/temperature", `{"temperature":21.5}`, nil, http.StatusOK, "temperature:21.5"},
		{"temperature too high", http.MethodPut, "/api/thermostat/temperature", `{"temperature":40}`, nil, http.StatusBadRequest, ""},
		{"temperature missing", http.MethodPut, "/api/thermostat/temperature", `{}`, nil, http.StatusBadRequest, ""},
		{"set preset", http.MethodPut, "/api/thermostat/preset_mode", `{"preset":"away"}`, nil, http.StatusOK, "preset_mode:away"},
		{"unknown preset mode", http.MethodPut, "/api/thermostat/preset_mode", `{"preset":"party"}`, preset.ErrUnknownPreset, http.StatusBadRequest, "preset_mode:party"},
		{"set preset temperature", http.MethodPut, "/api/thermostat/presets/eco/temperature", `{"temperature":18}`, nil, http.StatusOK, "preset_temperature:eco:18"},
		{"preset temperature unknown", http.MethodPut, "/api/thermostat/presets/party/temperature", `{"temperature":18}`, preset.ErrUnknownPreset, http.StatusNotFound, "preset_temperature:party:18"},
		{"preset temperature out of range", http.MethodPut, "/api/thermostat/presets/eco/temperature", `{"temperature":99}`, preset.ErrOutOfRange, http.StatusBadRequest, "preset_temperature:eco:99"},
		{"reset preset", http.MethodDelete, "/api/thermostat/presets/eco/temperature", "", nil, http.StatusOK, "reset:eco"},
		{"reset unknown preset", http.MethodDelete, "/api/thermostat/presets/none/temperature", "", preset.ErrUnknownPreset, http.StatusNotFound, "reset:none"},
		{"reset all", http.MethodPost, "/api/thermostat/presets/reset", "", nil, http.StatusOK, "reset:"},
		{"tolerance", http.MethodPut, "/api/thermostat/tolerance", `{"cold_tolerance":0.5}`, nil, http.StatusOK, "tolerance:cold=0.5"},
		{"stopped", http.MethodPut, "/api/thermostat/tolerance", `{"hot_tolerance":1}`, thermostat.ErrStopped, http.StatusInternalServerError, "tolerance:hot=1"},
		{"internal failure", http.MethodPut, "/api/thermostat/preset_mode", `{"preset":"eco"}`, errors.New("boom"), http.StatusInternalServerError, "preset_mode:eco"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake()
			fake.err = tt.err

			rec := do(t, NewServer(fake, nil).Router(), tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantCall == "" {
				assert.Empty(t, fake.calls)
			} else {
				assert.Equal(t, []string{tt.wantCall}, fake.calls)
			}

			if tt.wantCode != http.StatusOK {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestSetTemperature_ReturnsUpdatedState(t *testing.T) {
	fake := newFake()
	rec := do(t, NewServer(fake, nil).Router(), http.MethodPut, "/api/thermostat/temperature", `{"temperature":22}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var view thermostat.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 22.0, view.TargetTemperature)
}

func TestMethodNotAllowed(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/thermostat/hvac_mode"},
		{http.MethodDelete, "/api/thermostat"},
		{http.MethodGet, "/api/thermostat/temperature"},
		{http.MethodGet, "/api/thermostat/tolerance"},
		{http.MethodPut, "/api/thermostat/presets/reset"},
		{http.MethodPost, "/api/thermostat/presets/eco/temperature"},
	}

	h := NewServer(newFake(), nil).Router()
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, `{}`)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestUnknownPath(t *testing.T) {
	rec := do(t, NewServer(newFake(), nil).Router(), http.MethodGet, "/api/thermostat/fan_mode", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer(newFake(), []string{"http://dashboard.local"}).Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/thermostat/temperature", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://dashboard.local", rec.Header().Get("Access-Control-Allow-Origin"))
}
