package main

import (
	"image"
	"io"
	"net/http"
	"sync"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// instanceInfo is the JSON summary of one predicted instance.
type instanceInfo struct {
	Box     image.Rectangle `json:"box"`
	Area    int             `json:"area"`
	ClassID int             `json:"class_id"`
}

// splashServer funnels HTTP requests through the model worker so the
// interpreter only ever sees one image at a time.
type splashServer struct {
	cfg *Config
	in  chan gocv.Mat
	out chan *MaskStack
	mu  sync.Mutex
}

func runServer(cfg *Config, model *Model) error {
	srv := &splashServer{
		cfg: cfg,
		in:  make(chan gocv.Mat),
		out: make(chan *MaskStack),
	}
	go model.maskWorker(srv.in, srv.out)

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(static.Serve("/", static.LocalFile(cfg.StaticDir, false)))
	router.POST("/api/splash", srv.handleSplash)
	router.POST("/api/detect", srv.handleDetect)

	logger.Info("serving", zap.String("addr", cfg.ServeAddr))
	return router.Run(cfg.ServeAddr)
}

// predict decodes the request body and trades it with the worker for a mask
// stack. The returned image and stack are owned by the caller.
func (s *splashServer) predict(c *gin.Context) (gocv.Mat, *MaskStack, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return gocv.Mat{}, nil, false
	}

	img, err := gocv.IMDecode(body, gocv.IMReadColor)
	if err != nil || img.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot decode image"})
		return gocv.Mat{}, nil, false
	}

	s.mu.Lock()
	s.in <- img.Clone()
	stack := <-s.out
	s.mu.Unlock()

	return img, stack, true
}

func (s *splashServer) handleSplash(c *gin.Context) {
	img, stack, ok := s.predict(c)
	if !ok {
		return
	}
	defer img.Close()
	defer stack.Close()

	splash := ColorSplash(img, stack.Masks)
	defer splash.Close()
	if c.Query("boxes") == "true" {
		drawInstances(splash, stack, s.cfg.Name)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, splash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer buf.Close()
	c.Data(http.StatusOK, "image/jpeg", buf.GetBytes())
}

func (s *splashServer) handleDetect(c *gin.Context) {
	img, stack, ok := s.predict(c)
	if !ok {
		return
	}
	defer img.Close()
	defer stack.Close()

	instances := []instanceInfo{}
	for i, m := range stack.Masks {
		instances = append(instances, instanceInfo{
			Box:     maskBounds(m),
			Area:    gocv.CountNonZero(m),
			ClassID: stack.ClassIDs[i],
		})
	}
	c.JSON(http.StatusOK, instances)
}
