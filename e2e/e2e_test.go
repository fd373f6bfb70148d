//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/taxidispatch/app"
	"github.com/kilianp07/taxidispatch/config"
	"github.com/kilianp07/taxidispatch/core/factory"
	"github.com/kilianp07/taxidispatch/core/model"
)

const (
	influxOrg    = "e2e_org"
	influxBucket = "e2e_bucket"
	influxToken  = "e2e-token"
)

func startInflux(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "e2e",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "8086")
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "1883")
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

type received struct {
	mu     sync.Mutex
	events []model.HistoryEvent
	status []string
}

func subscribe(t *testing.T, broker string) *received {
	t.Helper()
	rec := &received{}
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("e2e-observer")
	cli := paho.NewClient(opts)
	tok := cli.Connect()
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	t.Cleanup(func() { cli.Disconnect(100) })

	sub := cli.Subscribe("taxidispatch/#", 1, func(_ paho.Client, m paho.Message) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		switch m.Topic() {
		case "taxidispatch/status":
			rec.status = append(rec.status, string(m.Payload()))
		case "taxidispatch/fleet", "taxidispatch/summary":
		default:
			var ev model.HistoryEvent
			if err := json.Unmarshal(m.Payload(), &ev); err == nil {
				rec.events = append(rec.events, ev)
			}
		}
	})
	require.True(t, sub.WaitTimeout(10*time.Second))
	require.NoError(t, sub.Error())
	return rec
}

func (r *received) completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == model.EventRideCompleted {
			n++
		}
	}
	return n
}

func TestE2EFullRun(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	influxURL := startInflux(ctx, t)
	broker := startMosquitto(ctx, t)
	rec := subscribe(t, broker)

	cfg := &config.Config{}
	cfg.Simulation.TotalRequests = 5
	cfg.Simulation.RequestInterval = 20 * time.Millisecond
	cfg.Simulation.TimeScale = 60_000
	cfg.Simulation.ExitWhenDone = true
	cfg.Fleet.Economy = 2
	cfg.Fleet.Comfort = 1
	cfg.Dispatch.PollTimeout = 10 * time.Millisecond
	cfg.Dispatch.RetryBackoff = 10 * time.Millisecond
	cfg.Taxi.PollTimeout = 10 * time.Millisecond
	cfg.Shutdown.DrainPoll = 10 * time.Millisecond
	cfg.Shutdown.DrainGrace = 10 * time.Millisecond
	cfg.Journal.Enabled = true
	cfg.Journal.Backend = "sqlite"
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = broker
	cfg.Metrics.Sinks = []factory.ModuleConfig{{
		Type: "influx",
		Conf: map[string]any{"url": influxURL, "token": influxToken, "org": influxOrg, "bucket": influxBucket},
	}}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	svc, err := app.New(cfg)
	require.NoError(t, err)
	sum, err := svc.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	assert.Equal(t, int64(5), sum.RidesCompleted)

	assert.Eventually(t, func() bool { return rec.completed() == 5 }, 10*time.Second, 50*time.Millisecond)
	rec.mu.Lock()
	assert.Contains(t, rec.status, "online")
	assert.Equal(t, "offline", rec.status[len(rec.status)-1])
	rec.mu.Unlock()

	cli := NewInfluxClient(influxURL, influxOrg, influxBucket, influxToken)
	defer cli.Close()
	n, err := cli.CountField(ctx, "ride_event", "request_id")
	require.NoError(t, err)
	assert.Positive(t, n)
	n, err = cli.CountField(ctx, "run_summary", "rides_completed")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
