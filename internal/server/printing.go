package server

import (
	"net/http"
	"strings"

	printingdomain "github.com/atolpos/atolpos/internal/printing/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreatePrinter(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Location string `json:"location,omitempty"`
		Type     string `json:"type,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	printer := &printingdomain.Printer{
		Name:     strings.TrimSpace(req.Name),
		Location: strings.TrimSpace(req.Location),
		Type:     printingdomain.PrinterType(req.Type),
		IsActive: true,
	}
	if err := s.printSvc.CreatePrinter(c.Request.Context(), printer); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, printer)
}

func (s *Server) ListPrinters(c *gin.Context) {
	printers, err := s.printSvc.ListPrinters(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers})
}

func (s *Server) ListPrintJobs(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}
	jobs, err := s.printSvc.ListJobsByOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) RetryPrintJob(c *gin.Context) {
	jobID, ok := paramID(c, "id")
	if !ok {
		return
	}
	job, err := s.printSvc.Retry(c.Request.Context(), jobID)
	if err != nil {
		if job != nil {
			// delivery failed again; the job carries the error
			c.JSON(http.StatusOK, gin.H{"job": job})
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}
