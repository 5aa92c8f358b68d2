package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jittakal/kafeventcsv/pkg/storage"
)

type memObject struct {
	name        string
	contentType string
	buf         bytes.Buffer
	closed      bool
	writeErr    error
	closeErr    error
}

func (o *memObject) Write(p []byte) (int, error) {
	if o.writeErr != nil {
		return 0, o.writeErr
	}
	return o.buf.Write(p)
}

func (o *memObject) Close() error {
	o.closed = true
	return o.closeErr
}

func memWriter(obj *memObject) objectWriterFunc {
	return func(ctx context.Context, object, contentType string) io.WriteCloser {
		obj.name = object
		obj.contentType = contentType
		return obj
	}
}

func TestGCSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  GCSConfig
		wantErr bool
	}{
		{"valid config", GCSConfig{Bucket: "test-bucket", ProjectID: "project"}, false},
		{"default credentials", GCSConfig{Bucket: "test-bucket", UseDefaultCredential: true}, false},
		{"empty bucket", GCSConfig{ProjectID: "project"}, true},
		{"both credential sources", GCSConfig{Bucket: "b", CredentialsFile: "/key.json", CredentialsJSON: "{}"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGCSClientOptions(t *testing.T) {
	tests := []struct {
		name   string
		config GCSConfig
		want   int
	}{
		{"default", GCSConfig{}, 0},
		{"endpoint", GCSConfig{Endpoint: "http://localhost:4443"}, 1},
		{"json", GCSConfig{CredentialsJSON: "{}"}, 1},
		{"file with endpoint", GCSConfig{CredentialsFile: "/key.json", Endpoint: "http://localhost:4443"}, 2},
		{"adc wins over file", GCSConfig{UseDefaultCredential: true, CredentialsFile: "/key.json"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(gcsClientOptions(tt.config, testLogger())); got != tt.want {
				t.Errorf("len(options) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGCSExporter_Export(t *testing.T) {
	obj := &memObject{}
	metrics := newFakeMetrics()
	exp := newGCSExporter(memWriter(obj), GCSConfig{Bucket: "events"}, testLogger(), metrics)

	body := "timestamp,event\r\n2024-01-01T00:00:00+00:00,some-event\r\n"
	n, err := exp.Export(context.Background(), "gs://events/dt=2024-01-01/a.csv", strings.NewReader(body), storage.ContentTypeCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if n != int64(len(body)) || obj.buf.String() != body {
		t.Errorf("Export() = %d, object = %q", n, obj.buf.String())
	}
	if obj.name != "dt=2024-01-01/a.csv" {
		t.Errorf("object name = %q", obj.name)
	}
	if obj.contentType != storage.ContentTypeCSV {
		t.Errorf("content type = %q", obj.contentType)
	}
	if !obj.closed {
		t.Error("object writer was not closed")
	}
	if metrics.exports["gcs/success"] != 1 {
		t.Errorf("exports = %v", metrics.exports)
	}
	if err := exp.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestGCSExporter_Errors(t *testing.T) {
	cause := errors.New("quota exceeded")

	tests := []struct {
		name   string
		obj    *memObject
		body   io.Reader
		wantOp string
	}{
		{"write fails", &memObject{writeErr: cause}, strings.NewReader("x"), "upload"},
		{"body fails", &memObject{}, &errReader{data: "x", err: cause}, "upload"},
		{"close fails", &memObject{closeErr: cause}, strings.NewReader("x"), "close"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := newFakeMetrics()
			exp := newGCSExporter(memWriter(tt.obj), GCSConfig{Bucket: "b"}, testLogger(), metrics)

			n, err := exp.Export(context.Background(), "a.csv", tt.body, storage.ContentTypeCSV)
			if n != 0 || !errors.Is(err, cause) {
				t.Fatalf("Export() = %d, %v", n, err)
			}
			if !tt.obj.closed {
				t.Error("object writer must be closed on failure")
			}
			if metrics.failures["gcs/"+tt.wantOp] != 1 || metrics.exports["gcs/error"] != 1 {
				t.Errorf("metrics failures=%v exports=%v", metrics.failures, metrics.exports)
			}
		})
	}
}
