package downloader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"ytdownloader/internal/format"
	"ytdownloader/internal/progress"
)

var (
	ErrBusy      = errors.New("a download is already in progress")
	ErrCancelled = errors.New("download cancelled")
	ErrNoOutput  = errors.New("no output file produced")
)

// MetadataErrorKind classifies why video info could not be resolved
type MetadataErrorKind int

const (
	MetadataUnknown MetadataErrorKind = iota
	MetadataTimeout
	MetadataNetworkUnreachable
	MetadataExtractionFailed
)

func (k MetadataErrorKind) String() string {
	switch k {
	case MetadataTimeout:
		return "timeout"
	case MetadataNetworkUnreachable:
		return "network unreachable"
	case MetadataExtractionFailed:
		return "extraction failed"
	default:
		return "unknown"
	}
}

// MetadataError is returned when video info could not be resolved
type MetadataError struct {
	Kind MetadataErrorKind
	Err  error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("failed to resolve video info (%s): %v", e.Kind, e.Err)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// Connectivity reports whether the failure looks like a network problem
func (e *MetadataError) Connectivity() bool {
	return e.Kind == MetadataTimeout || e.Kind == MetadataNetworkUnreachable
}

// FileExistsError is returned when the destination file is already present
type FileExistsError struct {
	Path string
}

func (e *FileExistsError) Error() string {
	return fmt.Sprintf("file already exists: %s", e.Path)
}

// TransferError wraps the final failure of a stream fetch
type TransferError struct {
	Kind progress.Kind
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer failed: %v", e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// MergeError carries the merge tool's diagnostic output verbatim
type MergeError struct {
	Output string
	Err    error
}

// Error does not repeat Output; the wrapped tool error already carries it
func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed: %v", e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// FileMoveError is returned when a finished download could not be moved
// to its destination
type FileMoveError struct {
	Source      string
	Destination string
	Err         error
}

func (e *FileMoveError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("failed to move download to %s: %v", e.Destination, e.Err)
	}
	return fmt.Sprintf("failed to move %s to %s: %v", e.Source, e.Destination, e.Err)
}

func (e *FileMoveError) Unwrap() error {
	return e.Err
}

var connectivityKeywords = []string{"connection", "network", "resolve", "unreachable"}

// classifyMetadataError wraps a provider failure into a MetadataError
func classifyMetadataError(err error) *MetadataError {
	var me *MetadataError
	if errors.As(err, &me) {
		return me
	}

	kind := MetadataUnknown

	var netErr net.Error
	var dnsErr *net.DNSError
	var opErr *net.OpError
	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = MetadataTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = MetadataTimeout
	case errors.As(err, &dnsErr), errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		kind = MetadataNetworkUnreachable
	case strings.Contains(msg, "timed out"), strings.Contains(msg, "timeout"):
		kind = MetadataTimeout
	case containsAny(msg, connectivityKeywords):
		kind = MetadataNetworkUnreachable
	case strings.Contains(msg, "failed to extract"), strings.Contains(msg, "unable to extract"):
		kind = MetadataExtractionFailed
	}

	return &MetadataError{Kind: kind, Err: err}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// UserMessage renders err as a status line for the user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		metaErr   *MetadataError
		existsErr *FileExistsError
		xferErr   *TransferError
		mergeErr  *MergeError
		moveErr   *FileMoveError
	)

	switch {
	case errors.Is(err, ErrCancelled):
		return "Download cancelled"
	case errors.Is(err, ErrBusy):
		return "Another download is in progress"
	case errors.As(err, &metaErr):
		if metaErr.Connectivity() {
			return "Network unreachable: check your connection and try again"
		}
		return fmt.Sprintf("Failed to get video info: %v", metaErr.Err)
	case errors.Is(err, format.ErrNoFormatsAvailable):
		return "No downloadable formats found for this video"
	case errors.Is(err, format.ErrNoMatchingFormat):
		return "No format matches the selected quality"
	case errors.As(err, &existsErr):
		return fmt.Sprintf("File already exists: %s", existsErr.Path)
	case errors.As(err, &xferErr):
		return fmt.Sprintf("Download failed: %v", xferErr.Err)
	case errors.As(err, &mergeErr):
		if mergeErr.Output != "" {
			return fmt.Sprintf("Merging video and audio failed: %s", mergeErr.Output)
		}
		return fmt.Sprintf("Merging video and audio failed: %v", mergeErr.Err)
	case errors.As(err, &moveErr):
		return fmt.Sprintf("Could not move the downloaded file: %v", moveErr.Err)
	default:
		return err.Error()
	}
}
