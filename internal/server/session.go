package server

import (
	"errors"
	"fmt"
	"strings"

	"chatterserver/internal/domain"
)

// lineConn is a transport delivering newline-terminated text lines in
// order, reliably, over a connection. TCP sockets and WebSockets both
// satisfy it.
type lineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

// Session is the per-connection state machine: unauthenticated until a
// LOGIN or CREATE_ACCOUNT succeeds, then bound to one identity until
// LOGOUT, EXIT or the connection drops.
type Session struct {
	id   string
	conn lineConn
	srv  *Server

	// user is only touched by this session's own goroutine.
	user *domain.User
}

// command describes one protocol verb. fields counts the comma-separated
// fields including the verb itself; freeText marks commands whose final
// field is taken as the rest of the line, so it may contain the delimiter.
type command struct {
	fields   int
	freeText bool
	needAuth bool
	handle   func(*Session, []string)
}

var commands = map[string]command{
	"LOGIN":                  {fields: 3, handle: (*Session).handleLogin},
	"CREATE_ACCOUNT":         {fields: 7, freeText: true, handle: (*Session).handleCreateAccount},
	"SEND_MESSAGE":           {fields: 3, freeText: true, needAuth: true, handle: (*Session).handleSendMessage},
	"SEND_PHOTO":             {fields: 3, needAuth: true, handle: (*Session).handleSendPhoto},
	"DELETE_MESSAGE":         {fields: 3, freeText: true, needAuth: true, handle: (*Session).handleDeleteMessage},
	"ADD_FRIEND":             {fields: 2, needAuth: true, handle: (*Session).handleAddFriend},
	"APPROVE_FRIEND_REQUEST": {fields: 2, needAuth: true, handle: (*Session).handleApproveFriendRequest},
	"REJECT_FRIEND_REQUEST":  {fields: 2, needAuth: true, handle: (*Session).handleRejectFriendRequest},
	"REMOVE_FRIEND":          {fields: 2, needAuth: true, handle: (*Session).handleRemoveFriend},
	"BLOCK_USER":             {fields: 2, needAuth: true, handle: (*Session).handleBlockUser},
	"UNBLOCK_USER":           {fields: 2, needAuth: true, handle: (*Session).handleUnblockUser},
	"SEARCH_USER":            {fields: 2, needAuth: true, handle: (*Session).handleSearchUser},
	"VIEW_USERS":             {fields: 1, needAuth: true, handle: (*Session).handleViewUsers},
	"VIEW_FRIENDS":           {fields: 1, needAuth: true, handle: (*Session).handleViewFriends},
	"VIEW_FRIEND_REQUESTS":   {fields: 1, needAuth: true, handle: (*Session).handleViewFriendRequests},
	"VIEW_BLOCKED":           {fields: 1, needAuth: true, handle: (*Session).handleViewBlocked},
	"GET_USER_PROFILE":       {fields: 2, needAuth: true, handle: (*Session).handleGetUserProfile},
	"GET_MESSAGES":           {fields: 2, needAuth: true, handle: (*Session).handleGetMessages},
	"LOGOUT":                 {fields: 1, needAuth: true, handle: (*Session).handleLogout},
	"EXIT":                   {fields: 1, handle: (*Session).handleExit},
}

// run reads command lines until the connection ends. A read failure while
// authenticated is an implicit logout.
func (s *Session) run() {
	defer func() {
		s.logout()
		s.conn.Close()
		s.srv.dropSession(s)
	}()

	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.srv.logger.Debug("connection closed", "session", s.id, "remote", s.conn.RemoteAddr(), "err", err)
			return
		}
		s.dispatch(line)
	}
}

// dispatch parses one command line, validates arity and session state, and
// invokes the handler. Malformed input gets an error reply and mutates
// nothing.
func (s *Session) dispatch(line string) {
	line = strings.TrimRight(line, "\r\n")
	verb := line
	if i := strings.IndexByte(line, ','); i >= 0 {
		verb = line[:i]
	}
	verb = strings.ToUpper(verb)

	cmd, ok := commands[verb]
	if !ok {
		s.send("ERROR,Unknown command")
		return
	}

	var parts []string
	if cmd.freeText {
		parts = strings.SplitN(line, ",", cmd.fields)
	} else {
		parts = strings.Split(line, ",")
	}
	if len(parts) != cmd.fields {
		s.send(fmt.Sprintf("ERROR,Invalid %s command", verb))
		return
	}

	if cmd.needAuth && s.user == nil {
		s.send("ERROR,Please log in first")
		return
	}

	cmd.handle(s, parts[1:])
}

// send writes one line to this session's client. Safe to call from other
// sessions' goroutines; the connection serializes writes internally.
func (s *Session) send(line string) {
	if err := s.conn.WriteLine(line); err != nil {
		s.srv.logger.Debug("write failed", "session", s.id, "err", err)
	}
}

func (s *Session) handleLogin(args []string) {
	if s.user != nil {
		s.send("ERROR,Already logged in")
		return
	}

	user, err := s.srv.directory.Authenticate(args[0], args[1])
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.send("LOGIN_FAILURE,Invalid credentials")
			return
		}
		s.srv.logger.Error("authenticate failed", "err", err)
		s.send("ERROR,Login failed")
		return
	}

	if err := s.srv.registry.Register(user.Username, s); err != nil {
		s.send("ERROR,User already logged in")
		return
	}
	s.user = &user

	s.send("LOGIN_SUCCESS")
	s.notifyFriendsStatus(true)
	s.send(s.userListLine())
	s.srv.logger.Info("user logged in", "user", user.Username, "session", s.id)
}

func (s *Session) handleCreateAccount(args []string) {
	if s.user != nil {
		s.send("ERROR,Already logged in. Please logout to create a new account.")
		return
	}

	username, password := args[0], args[1]
	email, birthday, bio, privacy := args[2], args[3], args[4], args[5]
	profile := fmt.Sprintf("Email: %s, Birthday: %s, Bio: %s, Privacy: %s", email, birthday, bio, privacy)

	user, err := s.srv.directory.Register(username, username, password, profile, defaultPicture)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUsernameTaken):
			s.send("ERROR,Username is already taken")
		case errors.Is(err, domain.ErrValidation):
			s.send("ERROR,All fields must be filled")
		default:
			s.srv.logger.Error("create account failed", "err", err)
			s.send("ERROR,Failed to create account")
		}
		return
	}

	if err := s.srv.registry.Register(user.Username, s); err != nil {
		// Account exists but the name was claimed between register and
		// login; the client can LOGIN from another connection.
		s.send("ERROR,User already logged in")
		return
	}
	s.user = &user
	s.srv.persist()

	s.send("CREATE_ACCOUNT_SUCCESS")
	s.notifyFriendsStatus(true)
	s.send(s.userListLine())
	s.srv.logger.Info("account created", "user", user.Username, "session", s.id)
}

const defaultPicture = "default_pic.png"

func (s *Session) handleSendMessage(args []string) {
	peerName, body := args[0], args[1]

	peer, err := s.srv.directory.Find(peerName)
	if err != nil {
		s.send("ERROR,Recipient not found")
		return
	}

	msg, err := s.srv.messages.Append(s.user.Username, peer.Username, body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			s.send("ERROR,Message body cannot be empty")
		case errors.Is(err, domain.ErrNotFriends):
			s.send("ERROR,You are not friends with " + peer.Username)
		default:
			s.send("ERROR,You cannot message " + peer.Username)
		}
		return
	}
	s.srv.persist()

	s.send("SEND_MESSAGE_SUCCESS")
	s.srv.registry.Route(peer.Username, fmt.Sprintf("MESSAGE,%s,%s", s.user.Username, msg.Body))
}

func (s *Session) handleSendPhoto(args []string) {
	peerName, photoRef := args[0], args[1]

	peer, err := s.srv.directory.Find(peerName)
	if err != nil {
		s.send("ERROR,Recipient not found")
		return
	}

	msg, err := s.srv.messages.AppendPhoto(s.user.Username, peer.Username, photoRef)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			s.send("ERROR,Photo reference cannot be empty")
		case errors.Is(err, domain.ErrNotFriends):
			s.send("ERROR,You are not friends with " + peer.Username)
		default:
			s.send("ERROR,You cannot message " + peer.Username)
		}
		return
	}
	s.srv.persist()

	s.send("SEND_PHOTO_SUCCESS")
	s.srv.registry.Route(peer.Username, fmt.Sprintf("PHOTO,%s,%s", s.user.Username, msg.PhotoRef))
}

func (s *Session) handleDeleteMessage(args []string) {
	peerName, body := args[0], args[1]

	peer, err := s.srv.directory.Find(peerName)
	if err != nil {
		s.send("ERROR,User not found")
		return
	}

	removed := s.srv.messages.Delete(s.user.Username, peer.Username, func(m domain.Message) bool {
		return !m.IsPhoto() && m.Body == body
	})
	if removed == 0 {
		s.send("ERROR,Message not found")
		return
	}
	s.srv.persist()
	s.send("DELETE_MESSAGE_SUCCESS," + peer.Username)
}

func (s *Session) handleAddFriend(args []string) {
	friend, err := s.srv.directory.Find(args[0])
	if err != nil {
		s.send("ERROR,User not found")
		return
	}

	if err := s.srv.graph.SendRequest(s.user.Username, friend.Username); err != nil {
		switch {
		case errors.Is(err, domain.ErrSelfTarget):
			s.send("ERROR,Cannot add yourself as a friend")
		case errors.Is(err, domain.ErrAlreadyFriends):
			s.send("ERROR,You are already friends with " + friend.Username)
		case errors.Is(err, domain.ErrRequestPending):
			s.send("ERROR,Friend request already sent to " + friend.Username)
		case errors.Is(err, domain.ErrBlockedByUser):
			s.send("ERROR,Unable to send a friend request to " + friend.Username)
		default:
			s.send("ERROR,Failed to send friend request")
		}
		return
	}
	s.srv.persist()

	s.send("ADD_FRIEND_SUCCESS," + friend.Username)
	s.srv.registry.Route(friend.Username, "FRIEND_REQUEST,"+s.user.Username)
}

func (s *Session) handleApproveFriendRequest(args []string) {
	requester, err := s.srv.directory.Find(args[0])
	if err != nil {
		s.send("ERROR,Requester not found")
		return
	}

	if err := s.srv.graph.Approve(s.user.Username, requester.Username); err != nil {
		s.send("ERROR,No pending friend request from " + requester.Username)
		return
	}
	s.srv.persist()

	s.send("APPROVE_FRIEND_REQUEST_SUCCESS," + requester.Username)
	s.srv.registry.Route(requester.Username, "FRIEND_REQUEST_APPROVED,"+s.user.Username)
}

func (s *Session) handleRejectFriendRequest(args []string) {
	requester, err := s.srv.directory.Find(args[0])
	if err != nil {
		s.send("ERROR,Requester not found")
		return
	}

	if err := s.srv.graph.Reject(s.user.Username, requester.Username); err != nil {
		s.send("ERROR,No pending friend request from " + requester.Username)
		return
	}
	s.srv.persist()

	s.send("REJECT_FRIEND_REQUEST_SUCCESS," + requester.Username)
	s.srv.registry.Route(requester.Username, "FRIEND_REQUEST_REJECTED,"+s.user.Username)
}

func (s *Session) handleRemoveFriend(args []string) {
	friend, err := s.srv.directory.Find(args[0])
	if err != nil {
		s.send("ERROR,User not found")
		return
	}

	if err := s.srv.graph.RemoveFriend(s.user.Username, friend.Username); err != nil {
		if errors.Is(err, domain.ErrSelfTarget) {
			s.send("ERROR,Cannot remove yourself")
			return
		}
		s.send("ERROR," + friend.Username + " is not your friend")
		return
	}
	s.srv.persist()

	s.send("REMOVE_FRIEND_SUCCESS," + friend.Username)
	s.srv.registry.Route(friend.Username, "FRIEND_REMOVED,"+s.user.Username)
}

func (s *Session) handleBlockUser(args []string) {
	target, err := s.srv.directory.Find(args[0])
	if err != nil {
		s.send("ERROR,User not found")
		return
	}

	if err := s.srv.graph.Block(s.user.Username, target.Username); err != nil {
		if errors.Is(err, domain.ErrSelfTarget) {
			s.send("ERROR,Cannot block yourself")
			return
		}
		s.send("ERROR,User is already blocked")
		return
	}
	s.srv.persist()

	s.send("BLOCK_USER_SUCCESS," + target.Username)
	s.srv.registry.Route(target.Username, "USER_BLOCKED,"+s.user.Username)
}

func (s *Session) handleUnblockUser(args []string) {
	target, err := s.srv.directory.Find(args[0])
	if err != nil {
		s.send("ERROR,User not found")
		return
	}

	if err := s.srv.graph.Unblock(s.user.Username, target.Username); err != nil {
		if errors.Is(err, domain.ErrSelfTarget) {
			s.send("ERROR,Cannot unblock yourself")
			return
		}
		s.send("ERROR,User is not blocked")
		return
	}
	s.srv.persist()
	s.send("UNBLOCK_USER_SUCCESS," + target.Username)
}

func (s *Session) handleSearchUser(args []string) {
	query := strings.ToLower(args[0])

	var matches []string
	for _, u := range s.srv.directory.All() {
		if !strings.Contains(strings.ToLower(u.Username), query) &&
			!strings.Contains(strings.ToLower(u.Name), query) {
			continue
		}
		if s.srv.graph.BlockedEitherWay(s.user.Username, u.Username) {
			continue
		}
		matches = append(matches, u.Username)
	}

	if len(matches) == 0 {
		s.send("SEARCH_USER_RESULTS,No users found matching the query.")
		return
	}
	s.send("SEARCH_USER_RESULTS," + strings.Join(matches, ";"))
}

func (s *Session) handleViewUsers(_ []string) {
	s.send(s.userListLine())
}

// userListLine builds the USER_LIST reply: every visible user prefixed with
// presence. Users in a blocked relationship with the viewer are hidden.
func (s *Session) userListLine() string {
	var entries []string
	for _, u := range s.srv.directory.All() {
		if s.user != nil && s.srv.graph.BlockedEitherWay(s.user.Username, u.Username) {
			continue
		}
		status := "offline"
		if s.srv.registry.IsOnline(u.Username) {
			status = "online"
		}
		entries = append(entries, status+":"+u.Username)
	}
	if len(entries) == 0 {
		return "USER_LIST,No users found."
	}
	return "USER_LIST," + strings.Join(entries, ";")
}

func (s *Session) handleViewFriends(_ []string) {
	var entries []string
	for _, f := range s.srv.graph.Friends(s.user.Username) {
		status := "offline"
		if s.srv.registry.IsOnline(f) {
			status = "online"
		}
		entries = append(entries, status+":"+s.displayName(f))
	}
	if len(entries) == 0 {
		s.send("FRIENDS_LIST,You have no friends.")
		return
	}
	s.send("FRIENDS_LIST," + strings.Join(entries, ";"))
}

func (s *Session) handleViewFriendRequests(_ []string) {
	pending := s.srv.graph.PendingIncoming(s.user.Username)
	if len(pending) == 0 {
		s.send("FRIEND_REQUESTS_LIST,You have no pending friend requests.")
		return
	}
	for i, p := range pending {
		pending[i] = s.displayName(p)
	}
	s.send("FRIEND_REQUESTS_LIST," + strings.Join(pending, ";"))
}

func (s *Session) handleViewBlocked(_ []string) {
	blocked := s.srv.graph.Blocked(s.user.Username)
	if len(blocked) == 0 {
		s.send("BLOCKED_USERS_LIST,You have no blocked users.")
		return
	}
	for i, b := range blocked {
		blocked[i] = s.displayName(b)
	}
	s.send("BLOCKED_USERS_LIST," + strings.Join(blocked, ";"))
}

func (s *Session) handleGetUserProfile(args []string) {
	target, err := s.srv.directory.Find(args[0])
	if err != nil || s.srv.graph.BlockedEitherWay(s.user.Username, target.Username) {
		// A blocked relationship hides the profile without revealing the
		// block itself.
		s.send("ERROR,User not found")
		return
	}
	s.send(fmt.Sprintf("USER_PROFILE,%s,%s,%s", target.Username, target.Profile, target.Picture))
}

func (s *Session) handleGetMessages(args []string) {
	friend, err := s.srv.directory.Find(args[0])
	if err != nil {
		s.send("ERROR,Friend not found")
		return
	}
	if !s.srv.graph.IsFriend(s.user.Username, friend.Username) {
		s.send("ERROR,You are not friends with " + friend.Username)
		return
	}

	history := s.srv.messages.History(s.user.Username, friend.Username)
	if len(history) == 0 {
		s.send("MESSAGES_LIST,No messages with " + friend.Username)
		return
	}
	rendered := make([]string, 0, len(history))
	for _, m := range history {
		rendered = append(rendered, m.String())
	}
	s.send("MESSAGES_LIST," + strings.Join(rendered, "|"))
}

func (s *Session) handleLogout(_ []string) {
	s.logout()
	s.send("LOGOUT_SUCCESS")
}

func (s *Session) handleExit(_ []string) {
	s.send("EXIT_SUCCESS")
	s.logout()
	s.conn.Close()
}

// logout runs the shared teardown: notify friends, release the registry
// entry, return to the unauthenticated state. Safe to call when not logged
// in, and on implicit logout after a connection drop.
func (s *Session) logout() {
	if s.user == nil {
		return
	}
	s.notifyFriendsStatus(false)
	s.srv.registry.Unregister(s.user.Username)
	s.srv.logger.Info("user logged out", "user", s.user.Username, "session", s.id)
	s.user = nil
}

func (s *Session) notifyFriendsStatus(online bool) {
	tag := "USER_OFFLINE,"
	if online {
		tag = "USER_ONLINE,"
	}
	for _, f := range s.srv.graph.Friends(s.user.Username) {
		s.srv.registry.Route(f, tag+s.user.Username)
	}
}

// displayName maps a canonical username back to its registered casing.
func (s *Session) displayName(username string) string {
	if u, err := s.srv.directory.Find(username); err == nil {
		return u.Username
	}
	return username
}
