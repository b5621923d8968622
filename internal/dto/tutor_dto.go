package dto

// TutorMessage is one turn in a tutor chat exchange.
type TutorMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required,max=8000"`
}

// TutorChatRequest relays a conversation to the upstream model.
type TutorChatRequest struct {
	Messages []TutorMessage `json:"messages" validate:"required,min=1,max=50,dive"`
}
