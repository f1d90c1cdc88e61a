package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/canvasgraph/pkg/buildinfo"
	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/collab"
	"github.com/matzehuels/canvasgraph/pkg/controller"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/layout"
	"github.com/matzehuels/canvasgraph/pkg/pipeline"
	"github.com/matzehuels/canvasgraph/pkg/render/nodelink"
	"github.com/matzehuels/canvasgraph/pkg/selection"
)

type canvasResponse struct {
	graph.Snapshot
	Selection selection.Selection `json:"selection"`
}

type addNodeRequest struct {
	Node      controller.NodeSpec `json:"node"`
	ConnectTo []canvas.Filter     `json:"connectTo,omitempty" validate:"dive"`
}

type addNodeResponse struct {
	Node     canvas.Node `json:"node"`
	Existing bool        `json:"existing,omitempty"`
}

type connectRequest struct {
	Source controller.PortRef `json:"source"`
	Target controller.PortRef `json:"target"`
}

type layoutRequest struct {
	Direction string `json:"direction,omitempty" validate:"omitempty,oneof=LR TB"`
}

type layoutResponse struct {
	Nodes     []canvas.Node `json:"nodes"`
	BackEdges int           `json:"backEdges"`
	Crossings int           `json:"crossings"`
	Skipped   []string      `json:"skipped,omitempty"`
	Cached    bool          `json:"cached"`
}

type relayoutRequest struct {
	FromRoot bool `json:"fromRoot"`
}

type positionRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

type sizeRequest struct {
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
}

type selectionRequest struct {
	Filter  *canvas.Filter `json:"filter,omitempty"`
	NodeIDs []string       `json:"nodeIds,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "canvases": len(s.registry.IDs())})
}

func (s *Server) version(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, buildinfo.Get())
}

func (s *Server) session(r *http.Request) (*collab.Session, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return nil, cgerrors.New(cgerrors.ErrCodeInvalidInput, "canvas id is required")
	}
	return s.registry.Get(r.Context(), id)
}

func (s *Server) getCanvas(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctrl := sess.Controller()
	s.writeJSON(w, http.StatusOK, canvasResponse{
		Snapshot:  graph.FromMirror(ctrl.Mirror()),
		Selection: ctrl.Selection(),
	})
}

func (s *Server) addNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	n, err := sess.Controller().AddNode(req.Node, req.ConnectTo)
	switch {
	case cgerrors.Is(err, cgerrors.ErrCodeDuplicateEntity):
		s.writeJSON(w, http.StatusOK, addNodeResponse{Node: n, Existing: true})
	case err != nil:
		s.writeError(w, err)
	default:
		s.writeJSON(w, http.StatusCreated, addNodeResponse{Node: n})
	}
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := chi.URLParam(r, "nodeID")
	n, err := sess.Controller().DeleteNodes(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if n == 0 {
		s.writeError(w, cgerrors.New(cgerrors.ErrCodeNotFound, "node %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveNode(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.Controller().MoveNode(chi.URLParam(r, "nodeID"), canvas.Position{X: *req.X, Y: *req.Y}); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateSize(w http.ResponseWriter, r *http.Request) {
	var req sizeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	size := canvas.Size{Width: req.Width, Height: req.Height}
	if err := sess.Controller().UpdateMeasuredSize(chi.URLParam(r, "nodeID"), size); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	e, err := sess.Controller().OnConnect(req.Source, req.Target)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, e)
}

// layoutCanvas runs a full layout through the cached pipeline and commits
// the positions in one transaction.
func (s *Server) layoutCanvas(w http.ResponseWriter, r *http.Request) {
	var req layoutRequest
	if r.ContentLength != 0 {
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	dir, err := canvas.ParseDirection(req.Direction)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctrl := sess.Controller()
	opts := s.layout
	opts.Direction = dir

	res, hit, err := s.runner.LayoutWithCacheInfo(r.Context(), graph.FromMirror(ctrl.Mirror()), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := ctrl.ApplyPositions(res.Nodes); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newLayoutResponse(res, hit))
}

func newLayoutResponse(res layout.Result, hit bool) layoutResponse {
	return layoutResponse{
		Nodes:     res.Nodes,
		BackEdges: res.BackEdges,
		Crossings: res.Crossings,
		Skipped:   res.Skipped,
		Cached:    hit,
	}
}

func (s *Server) relayoutBranch(w http.ResponseWriter, r *http.Request) {
	var req relayoutRequest
	if r.ContentLength != 0 {
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctrl := sess.Controller()
	moved, hit, err := s.runner.RelayoutWithCacheInfo(r.Context(), graph.FromMirror(ctrl.Mirror()), pipeline.RelayoutRequest{
		NodeID:   chi.URLParam(r, "nodeID"),
		FromRoot: req.FromRoot,
		Spacing:  s.spacing,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := ctrl.ApplyPositions(moved); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, layoutResponse{Nodes: moved, Cached: hit})
}

func (s *Server) setSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctrl := sess.Controller()
	if req.Filter != nil {
		found, err := ctrl.SetSelectionByFilter(*req.Filter)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !found {
			s.writeError(w, cgerrors.New(cgerrors.ErrCodeNotFound, "no node matches %s", req.Filter))
			return
		}
	} else if err := ctrl.Selector().SetSelection(req.NodeIDs); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ctrl.Selection())
}

func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	if err := pipeline.ValidateFormat(format); err != nil {
		s.writeError(w, err)
		return
	}
	detailed, _ := strconv.ParseBool(r.URL.Query().Get("detailed"))
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap := graph.FromMirror(sess.Controller().Mirror())
	data, hit, err := s.runner.RenderWithCacheInfo(r.Context(), snap, format, nodelink.Options{Detailed: detailed})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("X-Cache", map[bool]string{true: "HIT", false: "MISS"}[hit])
	_, _ = w.Write(data)
}

var contentTypes = map[string]string{
	pipeline.FormatDOT: "text/vnd.graphviz",
	pipeline.FormatSVG: "image/svg+xml",
	pipeline.FormatPNG: "image/png",
	pipeline.FormatPDF: "application/pdf",
}
