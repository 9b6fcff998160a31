package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	render "eraeval/adapters/report"
	"eraeval/domain/core"
	"eraeval/domain/evaluation"
	"eraeval/internal/analysis/neutralize"
	"eraeval/internal/analysis/penalize"
	"eraeval/internal/errors"
	"eraeval/internal/evaluator"
	"eraeval/ports"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	} else {
		s.logger.Debug("request rejected (%d): %v", status, err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: errors.GetCode(err)})
}

// decode reads and validates a JSON body; on failure the error response has
// already been written
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, errors.InvalidInput(fmt.Sprintf("invalid JSON body: %v", err)))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			err = errors.ValidationError(strings.Join(msgs, "; "))
		}
		s.writeError(w, err)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"storage": s.reports != nil,
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Save && s.reports == nil {
		s.writeError(w, errors.ConfigInvalid("report storage is not configured"))
		return
	}
	table, err := req.Table.ToTable()
	if err != nil {
		s.writeError(w, errors.Wrap(err, "invalid table"))
		return
	}

	settings := s.config.Evaluation.Settings()
	settings.EraCol = table.EraCol()
	if req.FastMode != nil {
		settings.FastMode = *req.FastMode
	}
	if req.TBSize != nil {
		settings.TBSize = *req.TBSize
	}
	ev, err := evaluator.New(evaluator.Options{Settings: settings, Workers: s.config.Evaluation.Workers, Logger: s.logger})
	if err != nil {
		s.writeError(w, err)
		return
	}

	report, err := ev.FullEvaluation(r.Context(), table, evaluator.EvaluateRequest{
		PredictionCols: req.Predictions,
		TargetCol:      req.TargetCol,
		ExampleCol:     req.ExampleCol,
		Features:       req.Features,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	dto := NewReportDTO(report)
	if req.Save {
		if err := s.reports.SaveReport(r.Context(), report); err != nil {
			s.writeError(w, err)
			return
		}
		dto.Saved = true
		s.logger.Info("saved report %s (%d columns)", report.ID, len(report.Rows))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) writeTransform(w http.ResponseWriter, result *evaluation.TransformResult) {
	values, err := result.Table.Column(result.Column)
	if err != nil {
		s.writeError(w, err)
		return
	}
	diags := result.Diagnostics
	if diags == nil {
		diags = []evaluation.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, TransformResponse{
		Column:      result.Column,
		Eras:        result.Table.Eras(),
		Values:      finiteSlice(values),
		Diagnostics: diags,
	})
}

func (s *Server) handleNeutralize(w http.ResponseWriter, r *http.Request) {
	var req NeutralizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	table, err := req.Table.ToTable()
	if err != nil {
		s.writeError(w, errors.Wrap(err, "invalid table"))
		return
	}

	proportion := s.config.Neutralizer.Proportion
	if req.Proportion != nil {
		proportion = *req.Proportion
	}
	n, err := neutralize.NewFeatureNeutralizer(proportion)
	if err != nil {
		s.writeError(w, err)
		return
	}
	n.Features = req.Features
	if req.Prediction != "" {
		n.Prediction = req.Prediction
	}
	n.Suffix = s.config.Neutralizer.Suffix
	n.Workers = s.config.Evaluation.Workers
	n.Logger = s.logger
	if req.Suffix != "" {
		n.Suffix = req.Suffix
	}
	result, err := n.Transform(r.Context(), table)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeTransform(w, result)
}

func (s *Server) handlePenalize(w http.ResponseWriter, r *http.Request) {
	var req PenalizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	table, err := req.Table.ToTable()
	if err != nil {
		s.writeError(w, errors.Wrap(err, "invalid table"))
		return
	}

	cfg := s.config.Penalizer
	maxExposure := cfg.MaxExposure
	if req.MaxExposure != nil {
		maxExposure = *req.MaxExposure
	}
	p, err := penalize.NewFeaturePenalizer(maxExposure)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Prediction != "" {
		p.Prediction = req.Prediction
	}
	p.Features = req.Features
	p.MaxIterations = cfg.MaxIterations
	if req.MaxIterations > 0 {
		p.MaxIterations = req.MaxIterations
	}
	p.RankNormalize = cfg.RankNormalize
	if req.RankNormalize != nil {
		p.RankNormalize = *req.RankNormalize
	}
	p.Suffix = cfg.Suffix
	if req.Suffix != "" {
		p.Suffix = req.Suffix
	}
	p.Workers = s.config.Evaluation.Workers
	p.Logger = s.logger

	result, err := p.Transform(r.Context(), table)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeTransform(w, result)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, errors.InvalidInput(err.Error()))
		return
	}
	report, err := s.reports.GetReport(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		dto := NewReportDTO(report)
		dto.Saved = true
		writeJSON(w, http.StatusOK, dto)
		return
	}
	renderer, err := render.ForFormat(format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := renderer.Render(&buf, report); err != nil {
		s.writeError(w, errors.Wrap(err, "failed to render report"))
		return
	}
	w.Header().Set("Content-Type", render.ContentType(renderer))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.InvalidInput(fmt.Sprintf("%s must be a non-negative integer, got %q", key, raw))
	}
	return v, nil
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	summaries, err := s.reports.ListReports(r.Context(), ports.ReportFilters{
		InputHash: core.Hash(r.URL.Query().Get("input_hash")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": summaries})
}
