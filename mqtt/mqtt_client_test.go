package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r19g75/modbus-bus-diag/scanner"
	"github.com/r19g75/modbus-bus-diag/services"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakeClient) messages() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.msgs...)
}

func TestPublisherJSON(t *testing.T) {
	client := &fakeClient{}
	p, err := newPublisher(client, Config{TopicPrefix: "bench/rs485/", QoS: 1}, logrus.StandardLogger())
	require.NoError(t, err)
	defer p.Close()

	p.ScanResult(services.ScanReport{
		Session:   "s1",
		Completed: true,
		Devices:   []scanner.DeviceRecord{{Address: 42, BaudRate: 19200}},
	})
	p.Flush()

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "bench/rs485/scan", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)

	var got services.ScanReport
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, "s1", got.Session)
	assert.Equal(t, []scanner.DeviceRecord{{Address: 42, BaudRate: 19200}}, got.Devices)
}

func TestPublisherCBOR(t *testing.T) {
	client := &fakeClient{}
	p, err := newPublisher(client, Config{Format: "cbor"}, logrus.StandardLogger())
	require.NoError(t, err)
	defer p.Close()

	p.Registers(services.RegisterReport{
		Session: "s2",
		Device:  scanner.DeviceRecord{Address: 3, BaudRate: 9600},
		Values:  []uint16{1, 2, 3},
	})
	p.Flush()

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "modbus/diag/registers", msgs[0].topic)

	var got services.RegisterReport
	require.NoError(t, cbor.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, []uint16{1, 2, 3}, got.Values)
	assert.Equal(t, uint8(3), got.Device.Address)
}

func TestPublisherBrokerErrorIsNotFatal(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p, err := newPublisher(client, Config{}, logrus.StandardLogger())
	require.NoError(t, err)
	defer p.Close()

	p.AnalysisSummary(services.AnalysisReport{Session: "s3"})
	p.Verification(services.VerifyReport{Session: "s3"})
	p.Flush()
	assert.Len(t, client.messages(), 2)
}

func TestPublisherRejectsUnknownFormat(t *testing.T) {
	_, err := newPublisher(&fakeClient{}, Config{Format: "xml"}, logrus.StandardLogger())
	assert.Error(t, err)
}
