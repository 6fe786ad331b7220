// Package protocol defines the control-channel wire format: line-delimited
// JSON objects exchanged over the TCP control connection, and the fixed
// binary headers carried by the audio and video UDP datagrams.
package protocol

import "encoding/json"

// Envelope is the superset JSON record used for every control message in
// both directions. Only the fields relevant to a given Type are populated;
// json "omitempty" keeps the wire payload close to the authoritative
// per-type schemas.
type Envelope struct {
	Type string `json:"type"`

	// login
	Username string `json:"username,omitempty"`

	// login_success, user_joined, user_left, chat/broadcast sender,
	// present_start_broadcast, present_stop_broadcast
	UID uint64 `json:"uid,omitempty"`

	// chat / broadcast / unicast text. Message is accepted on ingress as a
	// backward-compat alias for Text; only Text is ever emitted.
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`

	// unicast
	TargetUID uint64 `json:"target_uid,omitempty"`
	FromUID   uint64 `json:"from_uid,omitempty"`
	FromName  string `json:"from_username,omitempty"`
	ToUID     uint64 `json:"to_uid,omitempty"`
	ToName    string `json:"to_username,omitempty"`

	// participant_list
	Participants []ParticipantInfo `json:"participants,omitempty"`

	// history / get_history reply
	Messages []ChatMessage `json:"messages,omitempty"`

	// file_offer / file_upload_port / file_request / file_download_port / file_available
	FID      string `json:"fid,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Port     int    `json:"port,omitempty"`
	Offerer  uint64 `json:"offerer_uid,omitempty"`
	OfferName string `json:"offerer_username,omitempty"`

	// present_start / present_start_broadcast
	Topic      string `json:"topic,omitempty"`
	ViewerPort int    `json:"viewer_port,omitempty"`

	// error
	Reason string `json:"reason,omitempty"`

	// chat/broadcast/unicast/history timestamps
	TS string `json:"ts,omitempty"`
}

// ParticipantInfo is one entry of a participant_list reply.
type ParticipantInfo struct {
	UID      uint64 `json:"uid"`
	Username string `json:"username"`
}

// ChatMessage is one entry of a history reply.
type ChatMessage struct {
	TS        string `json:"ts"`
	UID       uint64 `json:"uid"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Kind      string `json:"kind"`
	TargetUID uint64 `json:"target_uid,omitempty"`
}

// Inbound message type constants (client -> server).
const (
	TypeLogin        = "login"
	TypeHeartbeat    = "heartbeat"
	TypeChat         = "chat"
	TypeBroadcast    = "broadcast"
	TypeUnicast      = "unicast"
	TypeGetHistory   = "get_history"
	TypeFileOffer    = "file_offer"
	TypeFileRequest  = "file_request"
	TypePresentStart = "present_start"
	TypePresentStop  = "present_stop"
	TypeLogout       = "logout"
)

// Outbound message type constants (server -> client).
const (
	TypeLoginSuccess          = "login_success"
	TypeParticipantList       = "participant_list"
	TypeHistory               = "history"
	TypeUserJoined            = "user_joined"
	TypeUserLeft              = "user_left"
	TypeHeartbeatAck          = "heartbeat_ack"
	TypeUnicastSent           = "unicast_sent"
	TypeFileUploadPort        = "file_upload_port"
	TypeFileDownloadPort      = "file_download_port"
	TypeFileAvailable         = "file_available"
	TypePresentStartBroadcast = "present_start_broadcast"
	TypePresentStopBroadcast  = "present_stop_broadcast"
	TypeError                 = "error"
)

// Decode parses one line of control-channel JSON into an Envelope.
func Decode(line []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(line, &e); err != nil {
		return Envelope{}, err
	}
	if e.Text == "" && e.Message != "" {
		e.Text = e.Message
	}
	e.Message = ""
	return e, nil
}

// Encode serializes an Envelope to a single LF-terminated JSON line.
func Encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
