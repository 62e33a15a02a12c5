package domain

// Chatroom 聊天室, participants 建立後固定
type Chatroom struct {
	ChatroomID    string   `json:"chatroomId"`
	Participants  []string `json:"participants"`
	LatestMessage *Message `json:"latestMessage,omitempty"`
}

// ChatroomResponse 後端聊天室列表回應
type ChatroomResponse struct {
	ChatroomID    string           `json:"chatroomId"`
	Participants  []string         `json:"participants"`
	LatestMessage *MessageResponse `json:"latestMessage,omitempty"`
	LastMessage   *MessageResponse `json:"lastMessage,omitempty"`
}

// ToChatroom converts the wire form; an unparsable latest message is dropped
func (r ChatroomResponse) ToChatroom() Chatroom {
	room := Chatroom{
		ChatroomID:   r.ChatroomID,
		Participants: append([]string(nil), r.Participants...),
	}

	latest := r.LatestMessage
	if latest == nil {
		latest = r.LastMessage
	}
	if latest != nil {
		if m, err := latest.ToMessage(r.ChatroomID); err == nil {
			room.LatestMessage = &m
		}
	}
	return room
}

// CreateChatroomRequest 建立聊天室
type CreateChatroomRequest struct {
	UserIDs []string `json:"userIds"`
}

// Cursor 每個聊天室的歷史分頁游標
type Cursor struct {
	NextPageIndex int  `json:"nextPageIndex"`
	Exhausted     bool `json:"exhausted"`
	TotalPages    int  `json:"totalPages"`
}
