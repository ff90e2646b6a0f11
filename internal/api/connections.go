package api

import (
	"net/http"

	"github.com/nextlevelbuilder/jobrunner/internal/connstore"
)

type connectionRequest struct {
	Name                   string `json:"name"`
	Driver                 string `json:"driver"`
	ServerName             string `json:"server_name,omitempty"`
	Port                   int    `json:"port,omitempty"`
	DatabaseName           string `json:"database_name,omitempty"`
	TrustedConnection      bool   `json:"trusted_connection"`
	Username               string `json:"username,omitempty"`
	Password               string `json:"password,omitempty"`
	Description            string `json:"description,omitempty"`
	ConnectionTimeout      int    `json:"connection_timeout,omitempty"`
	CommandTimeout         int    `json:"command_timeout,omitempty"`
	Encrypt                bool   `json:"encrypt"`
	TrustServerCertificate bool   `json:"trust_server_certificate"`
	IsActive               bool   `json:"is_active"`
}

func (req connectionRequest) toConnection() *connstore.Connection {
	return &connstore.Connection{
		Name:                   req.Name,
		Driver:                 req.Driver,
		ServerName:             req.ServerName,
		Port:                   req.Port,
		DatabaseName:           req.DatabaseName,
		TrustedConnection:      req.TrustedConnection,
		Username:               req.Username,
		Password:               req.Password,
		Description:            req.Description,
		ConnectionTimeout:      req.ConnectionTimeout,
		CommandTimeout:         req.CommandTimeout,
		Encrypt:                req.Encrypt,
		TrustServerCertificate: req.TrustServerCertificate,
		IsActive:               req.IsActive,
	}
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.Connections.List()
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.Connections.Create(req.toConnection())
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"connection_id": id})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conn, err := s.Connections.GetByID(id)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req connectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Connections.Update(id, req.toConnection()); err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Connections.Delete(id); err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
