package gateway

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Backend is the server side of the quiz contract.
type Backend interface {
	StartQuiz(ctx context.Context, req *StartQuizRequest) (*SessionResponse, error)
	StartFinalExam(ctx context.Context, req *StartFinalExamRequest) (*SessionResponse, error)
	SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error)
	FinalizeQuiz(ctx context.Context, req *FinalizeQuizRequest) (*FinalizeQuizResponse, error)
}

// RegisterBackendServer serves b on s. Requests must use the json content-subtype.
func RegisterBackendServer(s grpc.ServiceRegistrar, b Backend) {
	s.RegisterService(&serviceDesc, b)
}

// LearnerID returns the learner that issued the incoming request.
func LearnerID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	if v := md.Get(learnerIDHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Backend)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartQuiz",
			Handler:    unaryHandler("StartQuiz", Backend.StartQuiz),
		},
		{
			MethodName: "StartFinalExam",
			Handler:    unaryHandler("StartFinalExam", Backend.StartFinalExam),
		},
		{
			MethodName: "SubmitAnswer",
			Handler:    unaryHandler("SubmitAnswer", Backend.SubmitAnswer),
		},
		{
			MethodName: "FinalizeQuiz",
			Handler:    unaryHandler("FinalizeQuiz", Backend.FinalizeQuiz),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lifequiz/v1/quiz",
}

func unaryHandler[Req, Resp any](method string, call func(Backend, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		b := srv.(Backend)
		if interceptor == nil {
			return call(b, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(b, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
