package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jittakal/kafeventcsv/pkg/storage"
)

type fakeBlobAPI struct {
	container   string
	blob        string
	contentType string
	body        string
	err         error
}

func (f *fakeBlobAPI) UploadStream(ctx context.Context, containerName, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error) {
	f.container = containerName
	f.blob = blobName
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		f.contentType = *o.HTTPHeaders.BlobContentType
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return azblob.UploadStreamResponse{}, err
	}
	f.body = string(data)
	return azblob.UploadStreamResponse{}, f.err
}

func TestAzureConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  AzureConfig
		wantErr bool
	}{
		{"account key", AzureConfig{AccountName: "acct", AccountKey: "a2V5", ContainerName: "events"}, false},
		{"sas endpoint", AzureConfig{AccountName: "acct", ContainerName: "events", Endpoint: "https://acct.blob.core.windows.net/?sv=x"}, false},
		{"empty account", AzureConfig{AccountKey: "a2V5", ContainerName: "events"}, true},
		{"empty container", AzureConfig{AccountName: "acct", AccountKey: "a2V5"}, true},
		{"no credentials", AzureConfig{AccountName: "acct", ContainerName: "events"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAzureConnectionString(t *testing.T) {
	tests := []struct {
		name   string
		config AzureConfig
		want   string
	}{
		{
			name:   "public cloud",
			config: AzureConfig{AccountName: "acct", AccountKey: "key"},
			want:   "DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=key;EndpointSuffix=core.windows.net",
		},
		{
			name:   "emulator",
			config: AzureConfig{AccountName: "devstoreaccount1", AccountKey: "key", Endpoint: "http://127.0.0.1:10000/devstoreaccount1"},
			want:   "DefaultEndpointsProtocol=https;AccountName=devstoreaccount1;AccountKey=key;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.connectionString(); got != tt.want {
				t.Errorf("connectionString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAzureExporter_Export(t *testing.T) {
	api := &fakeBlobAPI{}
	metrics := newFakeMetrics()
	exp := newAzureExporter(api, AzureConfig{ContainerName: "events"}, testLogger(), metrics)

	body := "timestamp,event\r\n2024-01-01T00:00:00+00:00,some-event\r\n"
	n, err := exp.Export(context.Background(), "wasbs://events/dt=2024-01-01/a.csv", strings.NewReader(body), storage.ContentTypeCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if n != int64(len(body)) || api.body != body {
		t.Errorf("Export() = %d, uploaded %q", n, api.body)
	}
	if api.container != "events" || api.blob != "dt=2024-01-01/a.csv" {
		t.Errorf("uploaded to %s/%s", api.container, api.blob)
	}
	if api.contentType != storage.ContentTypeCSV {
		t.Errorf("content type = %q", api.contentType)
	}
	if metrics.exports["azure/success"] != 1 {
		t.Errorf("exports = %v", metrics.exports)
	}
}

func TestAzureExporter_UploadError(t *testing.T) {
	cause := errors.New("container not found")
	metrics := newFakeMetrics()
	exp := newAzureExporter(&fakeBlobAPI{err: cause}, AzureConfig{ContainerName: "events"}, testLogger(), metrics)

	n, err := exp.Export(context.Background(), "a.csv", strings.NewReader("x"), storage.ContentTypeCSV)
	if n != 0 || !errors.Is(err, cause) {
		t.Fatalf("Export() = %d, %v", n, err)
	}
	if metrics.failures["azure/upload"] != 1 || metrics.exports["azure/error"] != 1 {
		t.Errorf("metrics failures=%v exports=%v", metrics.failures, metrics.exports)
	}
}
