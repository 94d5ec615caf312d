package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/distribution"
	"github.com/ceyewan/shardproxy/heartbeat"
	"github.com/ceyewan/shardproxy/router"
	"github.com/ceyewan/shardproxy/sharding"
	"github.com/ceyewan/shardproxy/xerrors"
)

// resolveRequest 分布解析请求。equals 为等值谓词，ranges 为闭区间谓词。
type resolveRequest struct {
	Tables []string            `json:"tables" binding:"required,min=1"`
	Equals map[string][]any    `json:"equals"`
	Ranges map[string][][2]any `json:"ranges"`
}

func (r *resolveRequest) predicates() sharding.Predicates {
	if len(r.Equals) == 0 && len(r.Ranges) == 0 {
		return nil
	}
	p := make(sharding.Predicates, len(r.Equals)+len(r.Ranges))
	for col, values := range r.Equals {
		for _, v := range values {
			p[col] = append(p[col], sharding.Eq(v))
		}
	}
	for col, bounds := range r.Ranges {
		for _, b := range bounds {
			p[col] = append(p[col], sharding.Between(b[0], b[1]))
		}
	}
	return p
}

type resolveResponse struct {
	Type    string                        `json:"type"`
	Tables  []string                      `json:"tables"`
	Targets []string                      `json:"targets"`
	Groups  []distribution.ExecutionGroup `json:"groups"`
}

func (s *Server) healthz(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.heartbeat != nil {
		total, up := 0, 0
		for _, snap := range s.heartbeat.Snapshots() {
			total++
			if snap.Status == heartbeat.StatusOK {
				up++
			}
		}
		resp["instances"] = total
		resp["instances_ok"] = up
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listHeartbeat(c *gin.Context) {
	if s.heartbeat == nil {
		notConfigured(c, "heartbeat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": s.heartbeat.Snapshots()})
}

func (s *Server) getHeartbeat(c *gin.Context) {
	if s.heartbeat == nil {
		notConfigured(c, "heartbeat")
		return
	}
	snap, err := s.heartbeat.Snapshot(c.Param("instance"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) resolve(c *gin.Context) {
	if s.resolver == nil {
		notConfigured(c, "distribution")
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := s.resolver.Resolve(c.Request.Context(), req.Tables)
	if err != nil {
		s.fail(c, err)
		return
	}
	groups, err := d.DataNodes(distribution.WithPredicates(req.predicates()))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resolveResponse{
		Type:    d.Type().String(),
		Tables:  d.NameList(),
		Targets: distribution.GroupTargets(groups),
		Groups:  groups,
	})
}

func (s *Server) selectInstance(c *gin.Context) {
	if s.selector == nil {
		notConfigured(c, "router")
		return
	}
	cluster := c.Query("cluster")
	if cluster == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cluster is required"})
		return
	}
	mode := router.Mode(c.DefaultQuery("mode", string(router.ModeRead)))
	if mode != router.ModeRead && mode != router.ModeWrite {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be read or write"})
		return
	}
	instance, err := s.selector.Select(c.Request.Context(), cluster, mode)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cluster": cluster, "mode": mode, "instance": instance})
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("admin request failed", clog.String("path", c.FullPath()), clog.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error(), "code": xerrors.KindOf(err)})
}

func notConfigured(c *gin.Context, component string) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": component + " not configured"})
}

var kindStatus = map[xerrors.Kind]int{
	xerrors.KindNotFound:     http.StatusNotFound,
	xerrors.KindInvalidInput: http.StatusBadRequest,
	xerrors.KindUnsupported:  http.StatusUnprocessableEntity,
	xerrors.KindConflict:     http.StatusConflict,
	xerrors.KindUnavailable:  http.StatusServiceUnavailable,
	xerrors.KindTimeout:      http.StatusGatewayTimeout,
}

// statusCode 按错误类别映射 HTTP 状态码
func statusCode(err error) int {
	if code, ok := kindStatus[xerrors.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}
