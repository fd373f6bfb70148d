package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
	coremon "github.com/kilianp07/taxidispatch/core/monitoring"
	"github.com/kilianp07/taxidispatch/core/stats"
	"github.com/kilianp07/taxidispatch/infra/logger"
)

// DefaultTopicPrefix is used when Config.TopicPrefix is empty.
const DefaultTopicPrefix = "taxidispatch"

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool        `json:"enabled"`
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	QoS         byte        `json:"qos"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults fills unset fields. The client id gets a random suffix so
// that several simulators can share a broker.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.ClientID == "" {
		c.ClientID = "taxidispatch-" + uuid.NewString()[:8]
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks mandatory fields of an enabled client.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

func (c Config) eventTopic(kind model.EventKind) string {
	return fmt.Sprintf("%s/events/%s", c.TopicPrefix, kind)
}

func (c Config) statusTopic() string  { return c.TopicPrefix + "/status" }
func (c Config) fleetTopic() string   { return c.TopicPrefix + "/fleet" }
func (c Config) summaryTopic() string { return c.TopicPrefix + "/summary" }

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher mirrors ride history events, fleet censuses and the final
// summary onto MQTT topics. It implements the metrics Sink interface so it
// can be fanned out like any other sink. Fleet state, summary and the
// online/offline status are retained.
type Publisher struct {
	cli     pahoClient
	cfg     Config
	backoff time.Duration
	logger  logger.Logger
}

// NewPublisher connects to the broker. The last will marks the simulator
// offline on the status topic if the connection drops.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt")
	p := &Publisher{
		cfg:     cfg,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:  log,
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Publish(cfg.statusTopic(), cfg.QoS, true, "online"); token.Wait() && token.Error() != nil {
			log.Errorf("status publish error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.TopicPrefix != "" {
		opts.SetWill(cfg.statusTopic(), "offline", cfg.QoS, true)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// RecordEvent publishes the event as JSON on <prefix>/events/<kind>.
func (p *Publisher) RecordEvent(ev model.HistoryEvent) error {
	return p.publishJSON(p.cfg.eventTopic(ev.Kind), false, ev, map[string]string{"kind": ev.Kind.String()})
}

// RecordFleetState publishes the census on <prefix>/fleet.
func (p *Publisher) RecordFleetState(st coremetrics.FleetState) error {
	msg := struct {
		Available    int       `json:"available"`
		EnRoute      int       `json:"en_route"`
		Transporting int       `json:"transporting"`
		Offline      int       `json:"offline"`
		QueueDepth   int       `json:"queue_depth"`
		Time         time.Time `json:"time"`
	}{st.Available, st.EnRoute, st.Transporting, st.Offline, st.QueueDepth, st.Time}
	return p.publishJSON(p.cfg.fleetTopic(), true, msg, nil)
}

// RecordSummary publishes the final statistics on <prefix>/summary.
func (p *Publisher) RecordSummary(sum stats.Summary) error {
	return p.publishJSON(p.cfg.summaryTopic(), true, sum, nil)
}

func (p *Publisher) publishJSON(topic string, retained bool, v any, tags map[string]string) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, p.cfg.QoS, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	t := map[string]string{"module": "mqtt", "topic": topic}
	for k, v := range tags {
		t[k] = v
	}
	coremon.CaptureException(publishErr, t)
	return publishErr
}

// Disconnect marks the simulator offline and closes the connection.
func (p *Publisher) Disconnect() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	if token := p.cli.Publish(p.cfg.statusTopic(), p.cfg.QoS, true, "offline"); token.WaitTimeout(time.Second) && token.Error() != nil {
		p.logger.Warnf("status publish error: %v", token.Error())
	}
	p.cli.Disconnect(250)
}
