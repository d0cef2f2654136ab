// Package server exposes table search over gRPC and HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/pagefinder/internal/logger"
	"github.com/nainya/pagefinder/pkg/tables"
	"github.com/nainya/pagefinder/pkg/textstore"
)

// Version is reported by Health.
const Version = "1.0.0"

// Store is the read side of the text store the service needs.
type Store interface {
	tables.PageSource
	Stats() (textstore.Stats, error)
}

// Server implements TableSearchServer and backs the HTTP API
type Server struct {
	store  Store
	engine *tables.Engine
	log    *logger.Logger
	dbPath string

	minConfidence float64
	startTime     time.Time
}

// NewServer creates a service over store and engine. dbPath is only used
// to report the database size.
func NewServer(store Store, engine *tables.Engine, log *logger.Logger, dbPath string, minConfidence float64) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		store:         store,
		engine:        engine,
		log:           log,
		dbPath:        dbPath,
		minConfidence: minConfidence,
		startTime:     time.Now(),
	}
}

// DocumentInfo describes a stored document.
type DocumentInfo struct {
	DocID       string `json:"doc_id"`
	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	PageCount   int    `json:"page_count"`
	ContentHash string `json:"content_hash,omitempty"`
}

// SearchReport is the response of a corpus search.
type SearchReport struct {
	Results []tables.ExportRecord `json:"results"`
	Summary tables.Summary        `json:"summary"`
}

// StatsReport is the response of Stats.
type StatsReport struct {
	Documents    int   `json:"documents"`
	DigitalPages int   `json:"digital_pages"`
	OCRPages     int   `json:"ocr_pages"`
	DBSizeBytes  int64 `json:"db_size_bytes"`
	Tables       int   `json:"tables"`
}

// HealthReport is the response of Health.
type HealthReport struct {
	Healthy       bool   `json:"healthy"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ========== Core operations ==========

// ListDocuments returns every stored document in insertion order.
func (s *Server) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	ids, err := s.store.ListDocumentIDs()
	if err != nil {
		return nil, err
	}
	docs := make([]DocumentInfo, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.store.GetDocumentMetadata(id)
		if err != nil {
			return nil, err
		}
		info := DocumentInfo{DocID: id}
		if doc != nil {
			info.FileName = doc.FileName
			info.FilePath = doc.FilePath
			info.PageCount = doc.PageCount
			info.ContentHash = doc.ContentHash
		}
		docs = append(docs, info)
	}
	return docs, nil
}

// SearchDocument searches one stored document. It fails with
// ErrDocumentNotFound when docID has no metadata.
func (s *Server) SearchDocument(ctx context.Context, docID string, minConfidence *float64) ([]tables.ExportRecord, error) {
	doc, err := s.store.GetDocumentMetadata(docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	results, err := s.engine.SearchDocument(ctx, docID, s.confidence(minConfidence))
	if err != nil {
		return nil, err
	}
	return tables.ToExportRecords(results), nil
}

// SearchAll searches docIDs, or every document when docIDs is empty.
func (s *Server) SearchAll(ctx context.Context, docIDs []string, minConfidence *float64) (*SearchReport, error) {
	if len(docIDs) == 0 {
		docIDs = nil
	}
	results, err := s.engine.SearchAllDocuments(ctx, docIDs, s.confidence(minConfidence))
	if err != nil {
		return nil, err
	}
	return &SearchReport{
		Results: tables.ToExportRecords(results),
		Summary: s.engine.GetSummaryReport(results),
	}, nil
}

// Stats reports store counts and the database size.
func (s *Server) Stats(ctx context.Context) (*StatsReport, error) {
	st, err := s.store.Stats()
	if err != nil {
		return nil, err
	}
	report := &StatsReport{
		Documents:    st.Documents,
		DigitalPages: st.DigitalPages,
		OCRPages:     st.OCRPages,
		Tables:       len(s.engine.Definitions()),
	}
	if s.dbPath != "" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			report.DBSizeBytes = fi.Size()
		}
	}
	return report, nil
}

// Health reports liveness and uptime.
func (s *Server) Health(ctx context.Context) *HealthReport {
	return &HealthReport{
		Healthy:       true,
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
}

func (s *Server) confidence(v *float64) float64 {
	if v == nil {
		return s.minConfidence
	}
	return *v
}

// ========== gRPC adapters ==========

func (s *Server) grpcListDocuments(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"documents": docs})
}

func (s *Server) grpcSearchDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	docID := req.GetFields()["doc_id"].GetStringValue()
	if docID == "" {
		return nil, status.Error(codes.InvalidArgument, "doc_id is required")
	}
	minConf, err := confidenceField(req)
	if err != nil {
		return nil, err
	}
	results, err := s.SearchDocument(ctx, docID, minConf)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"results": results})
}

func (s *Server) grpcSearchAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	minConf, err := confidenceField(req)
	if err != nil {
		return nil, err
	}
	var docIDs []string
	for _, v := range req.GetFields()["doc_ids"].GetListValue().GetValues() {
		id := v.GetStringValue()
		if id == "" {
			return nil, status.Error(codes.InvalidArgument, "doc_ids must be non-empty strings")
		}
		docIDs = append(docIDs, id)
	}
	report, err := s.SearchAll(ctx, docIDs, minConf)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(report)
}

func (s *Server) grpcStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	report, err := s.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(report)
}

func (s *Server) grpcHealth(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(s.Health(ctx))
}

func confidenceField(req *structpb.Struct) (*float64, error) {
	v, ok := req.GetFields()["min_confidence"]
	if !ok {
		return nil, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || !validConfidence(n.NumberValue) {
		return nil, status.Error(codes.InvalidArgument, "min_confidence must be a number in [0, 1]")
	}
	return &n.NumberValue, nil
}

// validConfidence reports whether v is in [0, 1]. NaN is not.
func validConfidence(v float64) bool {
	return v >= 0 && v <= 1
}

// toStruct converts any JSON-encodable value to a Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return st, nil
}

// ErrDocumentNotFound is returned for a document with no metadata.
var ErrDocumentNotFound = errors.New("document not found")

// toStatus maps service errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, ErrDocumentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, textstore.ErrInvalidDocID), errors.Is(err, textstore.ErrInvalidPage):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, textstore.ErrCorrupt):
		return status.Error(codes.DataLoss, err.Error())
	}
	return status.Errorf(codes.Internal, "%v", err)
}
