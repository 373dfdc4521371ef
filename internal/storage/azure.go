package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBackend stores items as block blobs in a single container.
// Blob namespaces are flat; directories are synthesized from name segments.
//
// Listing failures degrade to empty results (logged), matching the read-side
// contract; writes and deletes surface their errors.
type AzureBackend struct {
	client      *azblob.Client
	container   string
	accountName string
	options     map[string]string
	logger      *slog.Logger
}

// NewAzureBackendFromConnectionString creates an Azure backend authenticated
// by a storage-account connection string. The container is created if it
// does not exist.
func NewAzureBackendFromConnectionString(ctx context.Context, connectionString, container string, logger *slog.Logger) (*AzureBackend, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("azure backend requires a connection string")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}
	opts := parseConnectionString(connectionString)
	b := &AzureBackend{
		client:      client,
		container:   container,
		accountName: opts["account_name"],
		options:     opts,
	}
	return b.finishInit(ctx, logger)
}

// NewAzureBackendWithCredential creates an Azure backend for the given
// storage account using a token credential (managed identity, workload
// identity, developer login). Pass nil to use the default credential chain.
func NewAzureBackendWithCredential(ctx context.Context, accountName, container string, cred azcore.TokenCredential, logger *slog.Logger) (*AzureBackend, error) {
	if accountName == "" {
		return nil, fmt.Errorf("azure backend requires an account name")
	}
	if cred == nil {
		var err error
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire azure credential: %w", err)
		}
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}
	b := &AzureBackend{
		client:      client,
		container:   container,
		accountName: accountName,
		options:     map[string]string{"account_name": accountName, "use_azure_cli": "false"},
	}
	return b.finishInit(ctx, logger)
}

func (b *AzureBackend) finishInit(ctx context.Context, logger *slog.Logger) (*AzureBackend, error) {
	if b.container == "" {
		return nil, fmt.Errorf("azure backend requires a container name")
	}
	if logger == nil {
		logger = slog.Default()
	}
	b.logger = logger.With("component", "azure_backend", "container", b.container)
	if _, err := b.client.CreateContainer(ctx, b.container, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil, fmt.Errorf("failed to ensure container %q: %w", b.container, err)
		}
	}
	return b, nil
}

// Kind implements Backend.
func (b *AzureBackend) Kind() string { return "azure" }

// SaveBytes implements Backend.
func (b *AzureBackend) SaveBytes(ctx context.Context, identifier string, data []byte) error {
	if _, err := b.client.UploadBuffer(ctx, b.container, identifier, data, nil); err != nil {
		b.logger.Error("blob upload failed", "identifier", identifier, "error", err)
		return NewStorageError("save_bytes", b.Kind(), identifier, err)
	}
	b.logger.Debug("saved blob", "identifier", identifier, "bytes", len(data))
	return nil
}

// LoadBytes implements Backend.
func (b *AzureBackend) LoadBytes(ctx context.Context, identifier string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, identifier, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, NewStorageError("load_bytes", b.Kind(), identifier, ErrNotFound)
		}
		return nil, NewStorageError("load_bytes", b.Kind(), identifier, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewStorageError("load_bytes", b.Kind(), identifier, err)
	}
	return data, nil
}

// ListItems implements Backend.
func (b *AzureBackend) ListItems(ctx context.Context, prefix string) ([]string, error) {
	names, err := b.listBlobNames(ctx, prefix)
	if err != nil {
		b.logger.Warn("blob listing failed, returning empty result", "prefix", prefix, "error", err)
		return []string{}, nil
	}
	return names, nil
}

// ListDirectories implements Backend.
func (b *AzureBackend) ListDirectories(ctx context.Context, prefix string) ([]string, error) {
	names, err := b.listBlobNames(ctx, prefix)
	if err != nil {
		b.logger.Warn("blob listing failed, returning empty result", "prefix", prefix, "error", err)
		return []string{}, nil
	}
	return childDirectories(names, prefix), nil
}

func (b *AzureBackend) listBlobNames(ctx context.Context, prefix string) ([]string, error) {
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	var names []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

// Exists implements Backend.
func (b *AzureBackend) Exists(ctx context.Context, identifier string) (bool, error) {
	blobClient := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(identifier)
	if _, err := blobClient.GetProperties(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return false, nil
		}
		return false, NewStorageError("exists", b.Kind(), identifier, err)
	}
	return true, nil
}

// Delete implements Backend. A missing blob is not an error.
func (b *AzureBackend) Delete(ctx context.Context, identifier string) error {
	if _, err := b.client.DeleteBlob(ctx, b.container, identifier, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			b.logger.Debug("delete of missing blob ignored", "identifier", identifier)
			return nil
		}
		return NewStorageError("delete", b.Kind(), identifier, err)
	}
	return nil
}

// MakeDirs implements Backend. Blob namespaces have no directories.
func (b *AzureBackend) MakeDirs(ctx context.Context, identifier string) error {
	return ctx.Err()
}

// URIFor implements Backend.
func (b *AzureBackend) URIFor(identifier string) (string, error) {
	return fmt.Sprintf("az://%s/%s", b.container, identifier), nil
}

// StorageOptions implements Backend. Account credentials when the backend
// was opened with a connection string.
func (b *AzureBackend) StorageOptions() map[string]string {
	out := make(map[string]string, len(b.options))
	for k, v := range b.options {
		out[k] = v
	}
	return out
}

func parseConnectionString(connectionString string) map[string]string {
	opts := make(map[string]string)
	for _, part := range strings.Split(connectionString, ";") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "accountname":
			opts["account_name"] = value
		case "accountkey":
			opts["account_key"] = value
		}
	}
	return opts
}
