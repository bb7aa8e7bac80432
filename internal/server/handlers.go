package server

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"group-chat-service/internal/storage"
)

// TODO limit reading from body

const defaultHistoryLimit = 50

type parsers struct {
	addMemberPool       fastjson.ParserPool
	createMessagePool   fastjson.ParserPool
	messagesByGroupPool fastjson.ParserPool
}

type handler struct {
	logger  *zap.SugaredLogger
	store   *storage.Store
	parsers parsers
}

// writeJSON marshals v and writes it with the provided status code
func (h *handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// internalError logs err and replies with a bare 500; storage errors never
// reach the client verbatim
func (h *handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error(err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// createUser handles HTTP requests on "/users/add" endpoint
func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)
	if !fastjson.Exists(body, "username") {
		http.Error(w, "Missing Field \"username\"", http.StatusBadRequest)
		return
	}

	username := fastjson.GetString(body, "username")
	if len(username) == 0 {
		http.Error(w, "Field \"username\" must be a string and have non-zero length", http.StatusBadRequest)
		return
	}

	user, err := h.store.CreateUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			http.Error(w, "User already exists", http.StatusConflict)
			return
		}
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, user)
}

// listUsers handles HTTP requests on "/users/get" endpoint
func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}

	if users == nil {
		users = []storage.User{}
	}

	h.writeJSON(w, http.StatusOK, users)
}

// createGroup handles HTTP requests on "/groups/add" endpoint
func (h *handler) createGroup(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)
	if !fastjson.Exists(body, "name") {
		http.Error(w, "Missing Field \"name\"", http.StatusBadRequest)
		return
	}

	name := fastjson.GetString(body, "name")
	if len(name) == 0 {
		http.Error(w, "Field \"name\" must be a string and have non-zero length", http.StatusBadRequest)
		return
	}

	group, err := h.store.CreateGroup(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrGroupExists) {
			http.Error(w, "Group name already exists", http.StatusConflict)
			return
		}
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, group)
}

// listGroups handles HTTP requests on "/groups/get" endpoint
func (h *handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListGroups(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}

	if groups == nil {
		groups = []storage.Group{}
	}

	h.writeJSON(w, http.StatusOK, groups)
}

// addMember handles HTTP requests on "/members/add" endpoint
func (h *handler) addMember(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.addMemberPool.Get()
	defer h.parsers.addMemberPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	// retrieving group name
	if !v.Exists("group") {
		http.Error(w, "Missing Field \"group\"", http.StatusBadRequest)
		return
	}

	groupBytes, err := v.Get("group").StringBytes()
	if err != nil {
		http.Error(w, "Field \"group\" must be a string", http.StatusBadRequest)
		return
	}

	group := string(groupBytes)
	if len(group) == 0 {
		http.Error(w, "Field \"group\" must have non-zero length", http.StatusBadRequest)
		return
	}

	// retrieving username
	if !v.Exists("username") {
		http.Error(w, "Missing Field \"username\"", http.StatusBadRequest)
		return
	}

	usernameBytes, err := v.Get("username").StringBytes()
	if err != nil {
		http.Error(w, "Field \"username\" must be a string", http.StatusBadRequest)
		return
	}

	username := string(usernameBytes)
	if len(username) == 0 {
		http.Error(w, "Field \"username\" must have non-zero length", http.StatusBadRequest)
		return
	}

	// retrieving optional role, blank defaults to "member" in storage
	var role string
	if v.Exists("role") {
		roleBytes, err := v.Get("role").StringBytes()
		if err != nil {
			http.Error(w, "Field \"role\" must be a string", http.StatusBadRequest)
			return
		}
		role = string(roleBytes)
	}

	membership, err := h.store.AddMember(r.Context(), group, username, role)
	if err != nil {
		switch err {
		case storage.ErrGroupNotExist:
			http.Error(w, "Group not found", http.StatusNotFound)
			return
		case storage.ErrUserNotExist:
			http.Error(w, "User not found", http.StatusNotFound)
			return
		case storage.ErrAlreadyMember:
			http.Error(w, "User is already a member of this group", http.StatusConflict)
			return
		default:
			h.internalError(w, err)
			return
		}
	}

	h.writeJSON(w, http.StatusCreated, membership)
}

// createMessage handles HTTP requests on "/messages/add" endpoint
func (h *handler) createMessage(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.createMessagePool.Get()
	defer h.parsers.createMessagePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	// retrieving group name
	if !v.Exists("group") {
		http.Error(w, "Missing Field \"group\"", http.StatusBadRequest)
		return
	}

	groupBytes, err := v.Get("group").StringBytes()
	if err != nil {
		http.Error(w, "Field \"group\" must be a string", http.StatusBadRequest)
		return
	}

	group := string(groupBytes)
	if len(group) == 0 {
		http.Error(w, "Field \"group\" must have non-zero length", http.StatusBadRequest)
		return
	}

	// retrieving username
	if !v.Exists("username") {
		http.Error(w, "Missing Field \"username\"", http.StatusBadRequest)
		return
	}

	usernameBytes, err := v.Get("username").StringBytes()
	if err != nil {
		http.Error(w, "Field \"username\" must be a string", http.StatusBadRequest)
		return
	}

	username := string(usernameBytes)
	if len(username) == 0 {
		http.Error(w, "Field \"username\" must have non-zero length", http.StatusBadRequest)
		return
	}

	// retrieving optional payload fields; storage rejects the message when
	// both come out blank
	var content string
	if v.Exists("content") && v.Get("content").Type() != fastjson.TypeNull {
		contentBytes, err := v.Get("content").StringBytes()
		if err != nil {
			http.Error(w, "Field \"content\" must be a string", http.StatusBadRequest)
			return
		}
		content = string(contentBytes)
	}

	var attachment string
	if v.Exists("attachment") && v.Get("attachment").Type() != fastjson.TypeNull {
		attachmentBytes, err := v.Get("attachment").StringBytes()
		if err != nil {
			http.Error(w, "Field \"attachment\" must be a string", http.StatusBadRequest)
			return
		}
		attachment = string(attachmentBytes)
	}

	message, err := h.store.CreateMessage(r.Context(), group, username, content, attachment)
	if err != nil {
		switch err {
		case storage.ErrEmptyMessage:
			http.Error(w, "Either content or attachment must be provided", http.StatusBadRequest)
			return
		case storage.ErrGroupNotExist:
			http.Error(w, "Group not found", http.StatusNotFound)
			return
		case storage.ErrUserNotExist:
			http.Error(w, "User not found", http.StatusNotFound)
			return
		case storage.ErrNotMember:
			http.Error(w, "User is not a member of this group", http.StatusForbidden)
			return
		default:
			h.internalError(w, err)
			return
		}
	}

	h.writeJSON(w, http.StatusCreated, message)
}

// messagesByGroup handles HTTP requests on "/messages/get" endpoint
func (h *handler) messagesByGroup(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.messagesByGroupPool.Get()
	defer h.parsers.messagesByGroupPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	// retrieving group name
	if !v.Exists("group") {
		http.Error(w, "Missing Field \"group\"", http.StatusBadRequest)
		return
	}

	groupBytes, err := v.Get("group").StringBytes()
	if err != nil {
		http.Error(w, "Field \"group\" must be a string", http.StatusBadRequest)
		return
	}

	group := string(groupBytes)
	if len(group) == 0 {
		http.Error(w, "Field \"group\" must have non-zero length", http.StatusBadRequest)
		return
	}

	// retrieving optional limit
	limit := defaultHistoryLimit
	if v.Exists("limit") {
		limit64, err := v.Get("limit").Int64()
		if err != nil {
			http.Error(w, "Field \"limit\" must be a 64-bit integer value", http.StatusBadRequest)
			return
		}
		limit = int(limit64)
	}

	// retrieving optional time bounds
	var filter storage.HistoryFilter

	if v.Exists("after") {
		afterBytes, err := v.Get("after").StringBytes()
		if err != nil {
			http.Error(w, "Field \"after\" must be a string", http.StatusBadRequest)
			return
		}
		after, err := time.Parse(time.RFC3339, string(afterBytes))
		if err != nil {
			http.Error(w, "Field \"after\" must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		filter.After = &after
	}

	if v.Exists("before") {
		beforeBytes, err := v.Get("before").StringBytes()
		if err != nil {
			http.Error(w, "Field \"before\" must be a string", http.StatusBadRequest)
			return
		}
		before, err := time.Parse(time.RFC3339, string(beforeBytes))
		if err != nil {
			http.Error(w, "Field \"before\" must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		filter.Before = &before
	}

	messages, err := h.store.MessagesByGroup(r.Context(), group, limit, filter)
	if err != nil {
		switch err {
		case storage.ErrBadLimit:
			http.Error(w, "Field \"limit\" must be between 1 and 500", http.StatusBadRequest)
			return
		case storage.ErrGroupNotExist:
			http.Error(w, "Group not found", http.StatusNotFound)
			return
		default:
			h.internalError(w, err)
			return
		}
	}

	if messages == nil {
		messages = []storage.Message{}
	}

	h.writeJSON(w, http.StatusOK, messages)
}

// health handles HTTP requests on "/health" endpoint, exempt from the
// POST+JSON middleware
func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"ok":true}`)); err != nil {
		h.logger.Errorf("writing health response: %v", err)
	}
}
