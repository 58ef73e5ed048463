package gateway

// Wire shapes for the coprocessor REST API.

type encryptRequest struct {
	Value uint32 `json:"value"`
}

type binaryOpRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

type selectRequest struct {
	Cond    string `json:"cond"`
	IfTrue  string `json:"if_true"`
	IfFalse string `json:"if_false"`
}

type allowRequest struct {
	Handle    string `json:"handle"`
	Principal string `json:"principal"`
}

type decryptRequest struct {
	Handle     string `json:"handle"`
	Principal  string `json:"principal"`
	Credential string `json:"credential"`
}

// handleResponse is returned by every ciphertext-producing operation.
type handleResponse struct {
	Handle string `json:"handle"`
}

type decryptResponse struct {
	Value uint32 `json:"value"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// errorResponse is the coprocessor's error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
