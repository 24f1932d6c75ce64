package configflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/model"
)

type fakeConnector struct {
	transport.ServerConnector
	files     map[string]*transport.ConfigFileResponse
	published []string
	watchCh   chan *transport.WatchConfigFileResponse
}

func key(ns, group, name string) string { return ns + "/" + group + "/" + name }

func (f *fakeConnector) GetConfigFile(_ context.Context, req *transport.ConfigFileRequest) (*transport.ConfigFileResponse, error) {
	resp, ok := f.files[key(req.Namespace, req.Group, req.Name)]
	if !ok {
		return &transport.ConfigFileResponse{Namespace: req.Namespace, Group: req.Group, Name: req.Name}, nil
	}
	return resp, nil
}

func (f *fakeConnector) CreateConfigFile(_ context.Context, req *transport.ConfigFileRequest) (*transport.ConfigFileResponse, error) {
	resp := &transport.ConfigFileResponse{Namespace: req.Namespace, Group: req.Group, Name: req.Name, Content: req.Content, Version: 1}
	f.files[key(req.Namespace, req.Group, req.Name)] = resp
	return resp, nil
}

func (f *fakeConnector) UpdateConfigFile(_ context.Context, req *transport.ConfigFileRequest) (*transport.ConfigFileResponse, error) {
	existing := f.files[key(req.Namespace, req.Group, req.Name)]
	version := uint64(1)
	if existing != nil {
		version = existing.Version + 1
	}
	resp := &transport.ConfigFileResponse{Namespace: req.Namespace, Group: req.Group, Name: req.Name, Content: req.Content, Version: version}
	f.files[key(req.Namespace, req.Group, req.Name)] = resp
	return resp, nil
}

func (f *fakeConnector) PublishConfigFile(_ context.Context, req *transport.ConfigFileRequest) error {
	f.published = append(f.published, req.ReleaseName)
	return nil
}

func (f *fakeConnector) WatchConfigFile(context.Context, *transport.WatchConfigFileRequest) (<-chan *transport.WatchConfigFileResponse, error) {
	return f.watchCh, nil
}

type upperFilter struct{}

func (upperFilter) Name() string   { return "upper" }
func (upperFilter) Init() error    { return nil }
func (upperFilter) Destroy() error { return nil }
func (upperFilter) Apply(file *model.ConfigFile) (*model.ConfigFile, error) {
	file.Content = strings.ToUpper(file.Content)
	return file, nil
}

func TestCreateThenUpdateThenGetReflectsLatest(t *testing.T) {
	conn := &fakeConnector{files: map[string]*transport.ConfigFileResponse{}}
	flow := New(conn, nil, nil)
	ctx := context.Background()

	_, err := flow.Create(ctx, &model.ConfigFile{Namespace: "ns", Group: "g", Name: "f.yaml", Content: "v1"})
	require.NoError(t, err)

	_, err = flow.Update(ctx, &model.ConfigFile{Namespace: "ns", Group: "g", Name: "f.yaml", Content: "v2"})
	require.NoError(t, err)

	got, err := flow.Get(ctx, "ns", "g", "f.yaml")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
}

func TestGetAppliesConfigFilter(t *testing.T) {
	conn := &fakeConnector{files: map[string]*transport.ConfigFileResponse{
		key("ns", "g", "f.yaml"): {Namespace: "ns", Group: "g", Name: "f.yaml", Content: "secret"},
	}}
	flow := New(conn, upperFilter{}, nil)
	got, err := flow.Get(context.Background(), "ns", "g", "f.yaml")
	require.NoError(t, err)
	assert.Equal(t, "SECRET", got.Content)
}

func TestPublishRecordsReleaseName(t *testing.T) {
	conn := &fakeConnector{files: map[string]*transport.ConfigFileResponse{}}
	flow := New(conn, nil, nil)
	err := flow.Publish(context.Background(), "ns", "g", "f.yaml", "release-1")
	require.NoError(t, err)
	require.Len(t, conn.published, 1)
	assert.Equal(t, "release-1", conn.published[0])
}

func TestWatchDeliversTenSequentialUpdatesInOrder(t *testing.T) {
	watchCh := make(chan *transport.WatchConfigFileResponse, 10)
	conn := &fakeConnector{files: map[string]*transport.ConfigFileResponse{}, watchCh: watchCh}
	flow := New(conn, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := flow.Watch(ctx, "rust", "rust", []string{"rust.toml"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		watchCh <- &transport.WatchConfigFileResponse{
			Namespace: "rust", Group: "rust", Name: "rust.toml",
			Content: "test-" + string(rune('0'+i)), Version: uint64(i + 1),
		}
	}
	close(watchCh)

	var received []string
	for file := range out {
		received = append(received, file.Content)
	}
	require.Len(t, received, 10)
	for i, content := range received {
		assert.Equal(t, "test-"+string(rune('0'+i)), content)
	}
}
