package token

// 測試時可替換
var (
	GenerateJWTFunc = GenerateJWT
	ParseJWTFunc    = ParseJWT
)
