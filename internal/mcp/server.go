package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/metabib/pdf-markup/internal/config"
	"github.com/metabib/pdf-markup/internal/document"
	"github.com/metabib/pdf-markup/internal/extract"
	"github.com/metabib/pdf-markup/internal/fields"
	"github.com/metabib/pdf-markup/internal/geom"
	"github.com/metabib/pdf-markup/internal/template"
)

// Server exposes the markup services as MCP tools over stdio.
type Server struct {
	config    *config.Config
	docs      *document.Service
	extractor extract.Extractor
	engine    *template.Engine
	registry  *fields.Registry
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance. engine may be nil when
// template learning is disabled; the template tools are then not
// registered.
func NewServer(cfg *config.Config, docs *document.Service, extractor extract.Extractor,
	engine *template.Engine, registry *fields.Registry,
) (*Server, error) {
	if docs == nil {
		return nil, fmt.Errorf("document service cannot be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("field registry cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
	)

	s := &Server{
		config:    cfg,
		docs:      docs,
		extractor: extractor,
		engine:    engine,
		registry:  registry,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	pdfInfoTool := mcp.NewTool(
		"pdf_info",
		mcp.WithDescription("Get page count and per-page dimensions of a PDF file"),
		mcp.WithString("pdf_file",
			mcp.Required(),
			mcp.Description("PDF file name inside the configured directory"),
		),
	)
	s.mcpServer.AddTool(pdfInfoTool, s.handlePDFInfo)

	pdfExtractRegionTool := mcp.NewTool(
		"pdf_extract_region",
		mcp.WithDescription("Extract text from a rectangular page region, post-processed per field class"),
		mcp.WithString("pdf_file",
			mcp.Required(),
			mcp.Description("PDF file name inside the configured directory"),
		),
		mcp.WithString("field_id",
			mcp.Required(),
			mcp.Description("Metadata field the region belongs to (e.g. title, doi, references_ru)"),
		),
		mcp.WithNumber("page",
			mcp.Description("Zero-based page index; negative counts from the end"),
		),
		mcp.WithNumber("x1", mcp.Required(), mcp.Description("Left edge in page points")),
		mcp.WithNumber("y1", mcp.Required(), mcp.Description("Bottom edge in page points")),
		mcp.WithNumber("x2", mcp.Required(), mcp.Description("Right edge in page points")),
		mcp.WithNumber("y2", mcp.Required(), mcp.Description("Top edge in page points")),
		mcp.WithNumber("page_width", mcp.Description("Page width in points (default 595)")),
		mcp.WithNumber("page_height", mcp.Description("Page height in points (default 842)")),
	)
	s.mcpServer.AddTool(pdfExtractRegionTool, s.handlePDFExtractRegion)

	if s.engine == nil {
		return
	}

	templateSuggestTool := mcp.NewTool(
		"template_suggest",
		mcp.WithDescription("Get learned field regions for a publication, with confidence"),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Publication key (ISSN-like identifier)"),
		),
		mcp.WithNumber("page_width", mcp.Description("Target page width in points (default 595)")),
		mcp.WithNumber("page_height", mcp.Description("Target page height in points (default 842)")),
	)
	s.mcpServer.AddTool(templateSuggestTool, s.handleTemplateSuggest)

	templateSaveSampleTool := mcp.NewTool(
		"template_save_sample",
		mcp.WithDescription("Record a confirmed field region as a template sample for a publication"),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Publication key (ISSN-like identifier)"),
		),
		mcp.WithString("publication_name",
			mcp.Description("Human-readable publication name"),
		),
		mcp.WithString("field_id",
			mcp.Required(),
			mcp.Description("Metadata field the region belongs to"),
		),
		mcp.WithNumber("page", mcp.Description("Zero-based page index")),
		mcp.WithNumber("x1", mcp.Required(), mcp.Description("Left edge in page points")),
		mcp.WithNumber("y1", mcp.Required(), mcp.Description("Bottom edge in page points")),
		mcp.WithNumber("x2", mcp.Required(), mcp.Description("Right edge in page points")),
		mcp.WithNumber("y2", mcp.Required(), mcp.Description("Top edge in page points")),
		mcp.WithNumber("page_width", mcp.Description("Page width in points (default 595)")),
		mcp.WithNumber("page_height", mcp.Description("Page height in points (default 842)")),
	)
	s.mcpServer.AddTool(templateSaveSampleTool, s.handleTemplateSaveSample)

	templateResetFieldTool := mcp.NewTool(
		"template_reset_field",
		mcp.WithDescription("Discard the learned samples of one field for a publication"),
		mcp.WithString("key", mcp.Required(), mcp.Description("Publication key")),
		mcp.WithString("field_id", mcp.Required(), mcp.Description("Field to reset")),
	)
	s.mcpServer.AddTool(templateResetFieldTool, s.handleTemplateResetField)

	templateDeleteTool := mcp.NewTool(
		"template_delete",
		mcp.WithDescription("Delete a publication and all of its learned templates"),
		mcp.WithString("key", mcp.Required(), mcp.Description("Publication key")),
	)
	s.mcpServer.AddTool(templateDeleteTool, s.handleTemplateDelete)

	templateListTool := mcp.NewTool(
		"template_list",
		mcp.WithDescription("List known publications ordered by processed article count"),
	)
	s.mcpServer.AddTool(templateListTool, s.handleTemplateList)
}

// Handler functions

func (s *Server) handlePDFInfo(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("pdf_file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := s.docs.Info(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("PDF: %s\n", info.Name)
	responseText += fmt.Sprintf("Size: %d bytes\n", info.Size)
	responseText += fmt.Sprintf("Pages: %d\n", info.PageCount)
	for _, page := range info.Pages {
		responseText += fmt.Sprintf("  Page %d: %.1f x %.1f points, rotation %d\n",
			page.Number, page.Width, page.Height, page.Rotation)
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handlePDFExtractRegion(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	name, err := request.RequireString("pdf_file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rect, pageW, pageH, err := rectArguments(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err := s.docs.Resolve(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.docs.Validate(path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.extractor.Extract(ctx, extract.Request{
		PDFFile: path,
		Selections: []extract.Selection{{
			Page:       intArgument(request, "page", 0),
			X1:         rect.X1,
			Y1:         rect.Y1,
			X2:         rect.X2,
			Y2:         rect.Y2,
			PageWidth:  pageW,
			PageHeight: pageH,
			FieldID:    fieldID,
		}},
		Options: extract.OptionsForClass(s.registry.ClassOf(fieldID)),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
	}
	if len(resp.Extracted) == 0 {
		return mcp.NewToolResultError("extraction returned no result"), nil
	}

	responseText := fmt.Sprintf("Field: %s\nPage: %d\n\n%s",
		fieldID, resp.Extracted[0].Page, resp.Extracted[0].Text)
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleTemplateSuggest(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pageW := floatArgument(request, "page_width", 595)
	pageH := floatArgument(request, "page_height", 842)

	suggestions, err := s.engine.SuggestAll(ctx, key, pageW, pageH)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(suggestions) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No templates for publication: %s", key)), nil
	}

	data, err := json.MarshalIndent(suggestions, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleTemplateSaveSample(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rect, pageW, pageH, err := rectArguments(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, ok := s.registry.Get(fieldID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown field: %s", fieldID)), nil
	}

	sample := template.Sample{
		Page:       intArgument(request, "page", 0),
		Rect:       rect,
		PageWidth:  pageW,
		PageHeight: pageH,
	}
	name := stringArgument(request, "publication_name", "")
	if err := s.engine.AddSample(ctx, key, name, fieldID, sample); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(
		fmt.Sprintf("Saved sample for publication %s field %s", key, fieldID)), nil
}

func (s *Server) handleTemplateResetField(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	removed, err := s.engine.ResetField(ctx, key, fieldID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !removed {
		return mcp.NewToolResultError(
			fmt.Sprintf("no template for publication %s field %s", key, fieldID)), nil
	}
	return mcp.NewToolResultText(
		fmt.Sprintf("Reset templates of publication %s field %s", key, fieldID)), nil
}

func (s *Server) handleTemplateDelete(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	removed, err := s.engine.ResetAll(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !removed {
		return mcp.NewToolResultError(fmt.Sprintf("unknown publication: %s", key)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted publication %s", key)), nil
}

func (s *Server) handleTemplateList(ctx context.Context, _ mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	publications, err := s.engine.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(publications) == 0 {
		return mcp.NewToolResultText("No publications with templates"), nil
	}

	responseText := fmt.Sprintf("Known publications (%d):\n", len(publications))
	for i, pub := range publications {
		responseText += fmt.Sprintf("%d. %s", i+1, pub.Key)
		if pub.Name != "" {
			responseText += fmt.Sprintf(" (%s)", pub.Name)
		}
		responseText += fmt.Sprintf(" - %d articles processed, %d fields with templates\n",
			pub.ArticlesProcessed, pub.FieldsWithTemplate)
	}
	return mcp.NewToolResultText(responseText), nil
}

// Argument helpers over the raw arguments map. JSON numbers arrive as
// float64.

func floatArgument(request mcp.CallToolRequest, key string, fallback float64) float64 {
	if v, ok := request.GetArguments()[key].(float64); ok {
		return v
	}
	return fallback
}

func intArgument(request mcp.CallToolRequest, key string, fallback int) int {
	if v, ok := request.GetArguments()[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func stringArgument(request mcp.CallToolRequest, key, fallback string) string {
	if v, ok := request.GetArguments()[key].(string); ok {
		return v
	}
	return fallback
}

func requireFloatArgument(request mcp.CallToolRequest, key string) (float64, error) {
	v, ok := request.GetArguments()[key].(float64)
	if !ok {
		return 0, fmt.Errorf("required argument %q not found", key)
	}
	return v, nil
}

// rectArguments reads the shared rectangle and page size arguments.
func rectArguments(request mcp.CallToolRequest) (geom.Rect, float64, float64, error) {
	coords := make(map[string]float64, 4)
	for _, key := range []string{"x1", "y1", "x2", "y2"} {
		v, err := requireFloatArgument(request, key)
		if err != nil {
			return geom.Rect{}, 0, 0, err
		}
		coords[key] = v
	}

	pageW := floatArgument(request, "page_width", 595)
	pageH := floatArgument(request, "page_height", 842)
	if pageW <= 0 || pageH <= 0 {
		return geom.Rect{}, 0, 0, fmt.Errorf("page size must be positive")
	}

	return geom.NewRect(coords["x1"], coords["y1"], coords["x2"], coords["y2"]), pageW, pageH, nil
}

// Run starts the MCP server in stdio mode.
func (s *Server) Run(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting markup MCP server in stdio mode")
		log.Printf("PDF directory: %s", s.config.PDFDirectory)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
