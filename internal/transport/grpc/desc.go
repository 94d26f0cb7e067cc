package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	availabilityServiceName = "tutorly.v1.AvailabilityService"
	reservationServiceName  = "tutorly.v1.ReservationService"

	createSlotMethod           = "/" + availabilityServiceName + "/CreateSlot"
	createRecurringSlotsMethod = "/" + availabilityServiceName + "/CreateRecurringSlots"
	deleteSlotMethod           = "/" + availabilityServiceName + "/DeleteSlot"
	rescheduleSlotMethod       = "/" + availabilityServiceName + "/RescheduleSlot"
	listSlotsMethod            = "/" + availabilityServiceName + "/ListSlots"
	watchSlotsMethod           = "/" + availabilityServiceName + "/WatchSlots"

	reserveSlotMethod  = "/" + reservationServiceName + "/ReserveSlot"
	listBookingsMethod = "/" + reservationServiceName + "/ListBookings"
)

type AvailabilityServiceServer interface {
	CreateSlot(context.Context, *CreateSlotRequest) (*CreateSlotResponse, error)
	CreateRecurringSlots(context.Context, *CreateRecurringSlotsRequest) (*CreateRecurringSlotsResponse, error)
	DeleteSlot(context.Context, *DeleteSlotRequest) (*DeleteSlotResponse, error)
	RescheduleSlot(context.Context, *RescheduleSlotRequest) (*RescheduleSlotResponse, error)
	ListSlots(context.Context, *ListSlotsRequest) (*ListSlotsResponse, error)
	WatchSlots(*WatchSlotsRequest, grpc.ServerStreamingServer[SlotsChanged]) error
}

type ReservationServiceServer interface {
	ReserveSlot(context.Context, *ReserveSlotRequest) (*ReserveSlotResponse, error)
	ListBookings(context.Context, *ListBookingsRequest) (*ListBookingsResponse, error)
}

func RegisterAvailabilityServiceServer(s grpc.ServiceRegistrar, srv AvailabilityServiceServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

func RegisterReservationServiceServer(s grpc.ServiceRegistrar, srv ReservationServiceServer) {
	s.RegisterService(&reservationServiceDesc, srv)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSlot", Handler: unary(createSlotMethod, AvailabilityServiceServer.CreateSlot)},
		{MethodName: "CreateRecurringSlots", Handler: unary(createRecurringSlotsMethod, AvailabilityServiceServer.CreateRecurringSlots)},
		{MethodName: "DeleteSlot", Handler: unary(deleteSlotMethod, AvailabilityServiceServer.DeleteSlot)},
		{MethodName: "RescheduleSlot", Handler: unary(rescheduleSlotMethod, AvailabilityServiceServer.RescheduleSlot)},
		{MethodName: "ListSlots", Handler: unary(listSlotsMethod, AvailabilityServiceServer.ListSlots)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchSlots", Handler: watchSlotsHandler, ServerStreams: true},
	},
	Metadata: "tutorly/v1/availability",
}

var reservationServiceDesc = grpc.ServiceDesc{
	ServiceName: reservationServiceName,
	HandlerType: (*ReservationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReserveSlot", Handler: unary(reserveSlotMethod, ReservationServiceServer.ReserveSlot)},
		{MethodName: "ListBookings", Handler: unary(listBookingsMethod, ReservationServiceServer.ListBookings)},
	},
	Metadata: "tutorly/v1/reservation",
}

// unary adapts a service method to grpc.MethodHandler, decoding the request
// and running the server's interceptor chain.
func unary[S, Req, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		})
	}
}

func watchSlotsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchSlotsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AvailabilityServiceServer).WatchSlots(in, &grpc.GenericServerStream[WatchSlotsRequest, SlotsChanged]{ServerStream: stream})
}
