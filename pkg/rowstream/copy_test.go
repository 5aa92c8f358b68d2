package rowstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return len(p) - 1, nil
}

func chunks(items ...string) Source[[]byte] {
	out := make([][]byte, len(items))
	for i, s := range items {
		out[i] = []byte(s)
	}
	return FromSlice(out)
}

func TestCopy(t *testing.T) {
	tests := []struct {
		name    string
		src     Source[[]byte]
		dst     func() io.Writer
		want    string
		wantN   int64
		wantErr error
	}{
		{
			name:  "empty",
			src:   chunks(),
			want:  "",
			wantN: 0,
		},
		{
			name:  "several chunks",
			src:   chunks("a,b\r\n", "c,d\r\n"),
			want:  "a,b\r\nc,d\r\n",
			wantN: 10,
		},
		{
			name:    "short write",
			src:     chunks("abc"),
			dst:     func() io.Writer { return shortWriter{} },
			wantN:   2,
			wantErr: io.ErrShortWrite,
		},
		{
			name: "writer error",
			src:  chunks("abc"),
			dst: func() io.Writer {
				return errWriter{err: io.ErrClosedPipe}
			},
			wantErr: io.ErrClosedPipe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var dst io.Writer = &buf
			if tt.dst != nil {
				dst = tt.dst()
			}

			n, err := Copy(context.Background(), dst, tt.src)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Copy() error = %v, want %v", err, tt.wantErr)
			}
			if n != tt.wantN {
				t.Errorf("Copy() n = %d, want %d", n, tt.wantN)
			}
			if tt.dst == nil && buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestCopy_SourceError(t *testing.T) {
	srcErr := errors.New("upstream failed")
	calls := 0
	src := SourceFunc[[]byte](func(ctx context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return []byte("ok\r\n"), nil
		}
		return nil, srcErr
	})

	var buf bytes.Buffer
	n, err := Copy(context.Background(), &buf, src)
	if err != srcErr {
		t.Fatalf("Copy() error = %v, want %v", err, srcErr)
	}
	if n != 4 || buf.String() != "ok\r\n" {
		t.Errorf("Copy() n = %d, output = %q", n, buf.String())
	}
}

func TestReader(t *testing.T) {
	r := NewReader(context.Background(), chunks("timestamp,event\r\n", "", "x,y\r\n"))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "timestamp,event\r\nx,y\r\n" {
		t.Errorf("ReadAll() = %q", got)
	}

	if n, err := r.Read(make([]byte, 8)); n != 0 || err != io.EOF {
		t.Errorf("Read() after EOF = %d, %v", n, err)
	}
}

func TestReader_SmallBuffer(t *testing.T) {
	r := NewReader(context.Background(), chunks("abcdef", "gh"))

	var out []byte
	p := make([]byte, 4)
	for {
		n, err := r.Read(p)
		out = append(out, p[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	if string(out) != "abcdefgh" {
		t.Errorf("read %q", out)
	}
}

func TestReader_ErrorIsSticky(t *testing.T) {
	srcErr := errors.New("boom")
	calls := 0
	src := SourceFunc[[]byte](func(ctx context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return []byte("row\n"), nil
		}
		return nil, srcErr
	})
	r := NewReader(context.Background(), src)

	p := make([]byte, 16)
	n, err := r.Read(p)
	if err != nil || string(p[:n]) != "row\n" {
		t.Fatalf("first Read() = %q, %v", p[:n], err)
	}
	for i := 0; i < 2; i++ {
		if _, err := r.Read(p); err != srcErr {
			t.Errorf("Read() error = %v, want %v", err, srcErr)
		}
	}
	if calls != 2 {
		t.Errorf("source pulled %d times after failure, want 2 total", calls)
	}
}

func TestReader_StreamEncodeError(t *testing.T) {
	s, err := New(FromSlice([]pair{{"a", "b"}}), pairFields, Config{Arity: 3})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = io.ReadAll(NewReader(context.Background(), s))
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Errorf("ReadAll() error = %v, want *EncodeError", err)
	}
}
