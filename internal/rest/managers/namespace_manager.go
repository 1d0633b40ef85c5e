package managers

import (
	"context"
	"fmt"

	"github.com/dfryer1193/schemad/internal/connector"
)

type NamespaceManager struct {
	connector connector.Connector
}

func NewNamespaceManager(c connector.Connector) *NamespaceManager {
	return &NamespaceManager{connector: c}
}

func (mgr *NamespaceManager) GetNamespaces(ctx context.Context) ([]string, error) {
	namespaces, err := mgr.connector.Namespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch namespaces: %w", err)
	}
	if namespaces == nil {
		namespaces = []string{}
	}
	return namespaces, nil
}
