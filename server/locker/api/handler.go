package api

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonlog "hospital_locker/server/common/log"
	"hospital_locker/server/common/middleware"
	"hospital_locker/server/common/transport/httpresp"
	"hospital_locker/server/locker/domain"
	lockerservice "hospital_locker/server/locker/service"
)

const maxUploadBytes = 64 << 20

type Handler struct {
	svc      *lockerservice.LockerService
	hub      *lockerservice.StatusHub
	upgrader websocket.Upgrader
}

func NewHandler(svc *lockerservice.LockerService, hub *lockerservice.StatusHub, allowedOrigins []string) *Handler {
	origins := map[string]struct{}{}
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &Handler{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 {
				return true
			}
			_, ok := origins[strings.TrimRight(origin, "/")]
			return ok
		}},
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpresp.NewStatusResponse("ok"))
	})
	r.POST("/session/sign-in", h.signIn)
	r.GET("/status", h.status)
	r.GET("/ws", h.handleStatusWS)

	api := r.Group("")
	api.Use(middleware.SessionRequired(h.svc.Session()))
	{
		api.GET("/session", h.currentSession)
		api.POST("/session/sign-out", h.signOut)
		api.GET("/view", h.view)
		api.POST("/refresh", h.refresh)
		api.POST("/documents", h.upload)
		api.GET("/documents/:docId/content", h.download)
		api.GET("/documents/:docId/thumbnail", h.thumbnail)
		api.GET("/conversations", h.listConversations)
		api.GET("/conversations/:id/messages", h.listMessages)
		api.DELETE("/cache", h.clearCache)

		doctor := api.Group("")
		doctor.Use(middleware.RequireRoles(domain.RoleDoctor.String()))
		doctor.POST("/documents/:docId/share", h.share)
		doctor.POST("/messages", h.sendMessage)

		admin := api.Group("")
		admin.Use(middleware.RequireRoles(domain.RoleAdmin.String()))
		admin.POST("/documents/:docId/visibility", h.toggleVisibility)
		admin.POST("/admin/users", h.createUser)
		admin.POST("/admin/assignments", h.assignPatient)
		admin.POST("/admin/roles", h.setRole)
	}
}

func (h *Handler) signIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, httpresp.ErrInvalidRequest)
		return
	}
	creds, err := h.svc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewSessionResponse(creds.UID, creds.Email, creds.Role.String()))
}

func (h *Handler) signOut(c *gin.Context) {
	h.svc.SignOut(c.Request.Context())
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) currentSession(c *gin.Context) {
	c.JSON(http.StatusOK, httpresp.NewSessionResponse(
		c.GetString(middleware.KeyUserID),
		c.GetString(middleware.KeyEmail),
		c.GetString(middleware.KeyRole),
	))
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.LastStatus())
}

func (h *Handler) view(c *gin.Context) {
	state, err := h.svc.View()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) refresh(c *gin.Context) {
	if err := h.svc.Refresh(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.view(c)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, httpresp.ErrMissingFile)
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, httpresp.ErrMissingFile)
		return
	}
	content, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		badRequest(c, httpresp.ErrMissingFile)
		return
	}
	res, err := h.svc.Upload(c.Request.Context(), domain.UploadedFile{Filename: fh.Filename, Content: content}, c.PostForm("patientEmail"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) download(c *gin.Context) {
	docID := strings.TrimSpace(c.Param("docId"))
	filename := strings.TrimSpace(c.Query("filename"))
	blob, err := h.svc.Download(c.Request.Context(), docID, filename)
	if err != nil {
		writeError(c, err)
		return
	}
	if filename == "" {
		filename = docID
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, contentType, blob)
}

func (h *Handler) thumbnail(c *gin.Context) {
	thumb, err := h.svc.Thumbnail(c.Request.Context(), c.Param("docId"), c.Query("filename"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", thumb)
}

func (h *Handler) share(c *gin.Context) {
	var req struct {
		Filename       string `json:"filename"`
		RecipientEmail string `json:"recipientEmail"`
		TextMessage    string `json:"textMessage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, httpresp.ErrInvalidRequest)
		return
	}
	confirmation, err := h.svc.Share(c.Request.Context(), c.Param("docId"), req.Filename, req.RecipientEmail, req.TextMessage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewMessageResponse(confirmation))
}

func (h *Handler) listConversations(c *gin.Context) {
	if err := h.svc.RefreshConversations(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Snapshot().Conversations)
}

func (h *Handler) listMessages(c *gin.Context) {
	msgs, err := h.svc.OpenConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req struct {
		RecipientEmail string `json:"recipientEmail"`
		TextMessage    string `json:"textMessage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, httpresp.ErrInvalidRequest)
		return
	}
	if err := h.svc.SendMessage(c.Request.Context(), req.RecipientEmail, req.TextMessage); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewMessageResponse("Message sent successfully."))
}

func (h *Handler) toggleVisibility(c *gin.Context) {
	visible, err := h.svc.ToggleVisibility(c.Request.Context(), c.Param("docId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": c.Param("docId"), "isVisibleToPatient": visible})
}

func (h *Handler) createUser(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, httpresp.ErrInvalidRequest)
		return
	}
	created, err := h.svc.CreateUser(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) assignPatient(c *gin.Context) {
	var req struct {
		DoctorUID  string `json:"doctorUid"`
		PatientUID string `json:"patientUid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, httpresp.ErrInvalidRequest)
		return
	}
	if err := h.svc.AssignPatient(c.Request.Context(), req.DoctorUID, req.PatientUID); err != nil {
		writeError(c, err)
		return
	}
	h.view(c)
}

func (h *Handler) setRole(c *gin.Context) {
	var req struct {
		UID  string `json:"uid"`
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, httpresp.ErrInvalidRequest)
		return
	}
	text, err := h.svc.SetRole(c.Request.Context(), req.UID, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewMessageResponse(text))
}

func (h *Handler) clearCache(c *gin.Context) {
	if err := h.svc.ClearCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) handleStatusWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		commonlog.Warnf("event=status_ws action=upgrade status=failed error=%v", err)
		return
	}
	client := h.hub.Register(conn)
	defer h.hub.Unregister(client)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
