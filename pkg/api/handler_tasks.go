package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calliq/qaengine/pkg/queue"
)

// taskCompileBlueprint handles POST /tasks/compile-blueprint:
// the internal endpoint the queue's HTTP-dispatch mode would call. A thin
// wrapper over queue.CompileHandler, the same function the in-process
// worker pool invokes.
func (s *Server) taskCompileBlueprint(c *gin.Context) {
	runTaskHandler(c, s.compileHandler)
}

// taskSandboxEvaluate handles POST /tasks/sandbox-evaluate.
func (s *Server) taskSandboxEvaluate(c *gin.Context) {
	runTaskHandler(c, s.sandboxHandler)
}

// taskProcessRecording handles POST /tasks/process-recording.
func (s *Server) taskProcessRecording(c *gin.Context) {
	runTaskHandler(c, s.evaluateHandler)
}

// runTaskHandler reads the raw JSON body and hands it to handler, the
// shared plumbing behind all three task endpoints.
func runTaskHandler(c *gin.Context, handler queue.Handler) {
	raw, err:= io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer c.Request.Body.Close()

	if err:= handler(c.Request.Context(), raw); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
