// Package configflow implements the config-file get/create/update/publish/
// watch operations against the control plane, with a pluggable content
// filter for decrypting published files.
package configflow

import (
	"context"

	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// Flow drives the config-file CRUD+publish+watch surface.
type Flow struct {
	connector transport.ServerConnector
	filter    ConfigFilter
	log       *logging.Logger
}

// New builds a Flow. A nil filter defaults to the identity filter.
func New(connector transport.ServerConnector, filter ConfigFilter, log *logging.Logger) *Flow {
	if filter == nil {
		filter = NewIdentityFilter()
	}
	if log == nil {
		log = logging.Global()
	}
	return &Flow{connector: connector, filter: filter, log: log}
}

// Get fetches the current published version of a config file.
func (f *Flow) Get(ctx context.Context, namespace, group, name string) (*model.ConfigFile, error) {
	resp, err := f.connector.GetConfigFile(ctx, &transport.ConfigFileRequest{
		Namespace: namespace,
		Group:     group,
		Name:      name,
	})
	if err != nil {
		return nil, err
	}
	return f.filter.Apply(fromResponse(resp))
}

// Create creates a new, unpublished config file.
func (f *Flow) Create(ctx context.Context, file *model.ConfigFile) (*model.ConfigFile, error) {
	resp, err := f.connector.CreateConfigFile(ctx, toRequest(file))
	if err != nil {
		return nil, err
	}
	return fromResponse(resp), nil
}

// Update overwrites the content of an existing, unpublished config file.
func (f *Flow) Update(ctx context.Context, file *model.ConfigFile) (*model.ConfigFile, error) {
	resp, err := f.connector.UpdateConfigFile(ctx, toRequest(file))
	if err != nil {
		return nil, err
	}
	return fromResponse(resp), nil
}

// Publish releases the current content of a config file under releaseName,
// making it visible to Get and to existing Watch subscribers.
func (f *Flow) Publish(ctx context.Context, namespace, group, name, releaseName string) error {
	return f.connector.PublishConfigFile(ctx, &transport.ConfigFileRequest{
		Namespace:   namespace,
		Group:       group,
		Name:        name,
		ReleaseName: releaseName,
	})
}

// Watch subscribes to publish events for the named files, filtering each
// through the configured ConfigFilter before delivery. The returned
// channel is closed when ctx is cancelled or the underlying stream ends.
func (f *Flow) Watch(ctx context.Context, namespace, group string, names []string) (<-chan *model.ConfigFile, error) {
	events, err := f.connector.WatchConfigFile(ctx, &transport.WatchConfigFileRequest{
		Namespace: namespace,
		Group:     group,
		Names:     names,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan *model.ConfigFile, 16)
	go func() {
		defer close(out)
		for ev := range events {
			file, err := f.filter.Apply(fromWatchEvent(ev))
			if err != nil {
				f.log.WithError(err).WithField("file", ev.Namespace+"/"+ev.Group+"/"+ev.Name).Warn("config filter rejected watch event")
				continue
			}
			select {
			case out <- file:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func toRequest(file *model.ConfigFile) *transport.ConfigFileRequest {
	return &transport.ConfigFileRequest{
		Namespace: file.Namespace,
		Group:     file.Group,
		Name:      file.Name,
		Content:   file.Content,
	}
}

func fromResponse(resp *transport.ConfigFileResponse) *model.ConfigFile {
	return &model.ConfigFile{
		Namespace: resp.Namespace,
		Group:     resp.Group,
		Name:      resp.Name,
		Content:   resp.Content,
		Version:   resp.Version,
	}
}

func fromWatchEvent(ev *transport.WatchConfigFileResponse) *model.ConfigFile {
	return &model.ConfigFile{
		Namespace: ev.Namespace,
		Group:     ev.Group,
		Name:      ev.Name,
		Content:   ev.Content,
		Version:   ev.Version,
	}
}
