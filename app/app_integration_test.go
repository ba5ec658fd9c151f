// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build integration
// +build integration

package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soothill/delock-energy-collector/app"
	"github.com/soothill/delock-energy-collector/collector"
	"github.com/soothill/delock-energy-collector/config"
	"github.com/soothill/delock-energy-collector/storage"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/influxdb"
)

const deviceStatus = `{"StatusSNS":{"Time":"2024-01-01T12:00:00","ENERGY":{"TotalStartTime":"2023-05-01T10:00:00","Total":123.456,"Yesterday":1.2,"Today":0.8,"Power":55,"ApparentPower":60,"ReactivePower":20,"Factor":0.92,"Voltage":231,"Current":0.26}}}`

type AppIntegrationTestSuite struct {
	suite.Suite
	influxDBContainer *influxdb.InfluxDbContainer
	influxDBURL       string
}

func TestAppIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(AppIntegrationTestSuite))
}

func (s *AppIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	container, err := influxdb.Run(ctx,
		"influxdb:2.7-alpine",
		influxdb.WithV2Auth("testorg", "testbucket", "testuser", "testpassword"),
		influxdb.WithV2AdminToken("testtoken"),
	)
	s.Require().NoError(err)
	s.influxDBContainer = container

	s.influxDBURL, err = container.ConnectionUrl(ctx)
	s.Require().NoError(err)
}

func (s *AppIntegrationTestSuite) TearDownSuite() {
	if s.influxDBContainer != nil {
		s.Require().NoError(s.influxDBContainer.Terminate(context.Background()))
	}
}

func (s *AppIntegrationTestSuite) config(deviceURL string) *config.Config {
	return &config.Config{
		InfluxDB: config.InfluxDBConfig{
			URL:             s.influxDBURL,
			Token:           "testtoken",
			Organization:    "testorg",
			Bucket:          "testbucket",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Device: config.DeviceConfig{
			URL:            deviceURL,
			ID:             "delock-0580",
			ConnectTimeout: time.Second,
			ReadTimeout:    time.Second,
		},
		Collector: config.CollectorConfig{
			PollInterval:  time.Second,
			RetryInterval: time.Second,
		},
		Metrics: config.MetricsConfig{Address: "localhost:0"},
		Logging: config.LoggingConfig{Level: "info"},
	}
}

func (s *AppIntegrationTestSuite) TestAppLifecycle() {
	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(deviceStatus))
	}))
	defer device.Close()

	cfg := s.config(device.URL + "/cm?cmnd=Status%2008")
	application, err := app.New(cfg)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan collector.LoopState, 1)
	go func() {
		done <- application.Run(ctx)
	}()

	// Let at least two polls land
	time.Sleep(2500 * time.Millisecond)
	cancel()

	var state collector.LoopState
	select {
	case state = <-done:
	case <-time.After(10 * time.Second):
		s.T().Fatal("App did not shut down gracefully")
	}

	s.True(state.Cancelled)
	s.GreaterOrEqual(state.Iterations, uint64(2))
	s.Zero(state.ConsecutiveFailures)

	reader := storage.NewInfluxDBWriter(storage.WriterConfig{
		URL:          cfg.InfluxDB.URL,
		Token:        cfg.InfluxDB.Token,
		Organization: cfg.InfluxDB.Organization,
		Bucket:       cfg.InfluxDB.Bucket,
	})
	reading, _, err := reader.QueryLatest(context.Background(), "delock-0580")
	s.Require().NoError(err)
	s.Equal(55.0, reading.Power)
	s.Equal(123.456, reading.Total)
	s.Equal(231.0, reading.Voltage)
	s.Equal(0.26, reading.Current)
}

func (s *AppIntegrationTestSuite) TestAppKeepsPollingUnreachableDevice() {
	device := httptest.NewServer(http.NotFoundHandler())
	deviceURL := device.URL + "/cm?cmnd=Status%2008"
	device.Close()

	application, err := app.New(s.config(deviceURL))
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	state := application.Run(ctx)

	s.True(state.Cancelled)
	s.GreaterOrEqual(state.Iterations, uint64(2))
	s.Equal(state.Iterations, state.ConsecutiveFailures)
	s.Error(state.LastError)
}
