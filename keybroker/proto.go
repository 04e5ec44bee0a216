package keybroker

// Wire messages for every token KeyBroker issues, declared by hand with
// protobuf struct tags so github.com/gogo/protobuf's reflection-based
// Marshal/Unmarshal can encode them without a protoc-generated file —
// grounded in the *Proto types broker.rs defines next to each token kind
// (AdminKeyProto, StorageTokenProto, ActionCallbackTokenProto,
// CursorProto, QueryJournalProto).

func (m *AdminKeyProto) Reset()         { *m = AdminKeyProto{} }
func (m *AdminKeyProto) String() string { return protoString(m) }
func (*AdminKeyProto) ProtoMessage()    {}

// AdminKeyProto is either a member identity or the system identity,
// mutually exclusive, matching the oneof in broker.rs's AdminIdentityProto.
type AdminKeyProto struct {
	IssuedS      uint64 `protobuf:"varint,1,opt,name=issued_s"`
	MemberID     string `protobuf:"bytes,2,opt,name=member_id"`
	IsSystem     bool   `protobuf:"varint,3,opt,name=is_system"`
	InstanceName string `protobuf:"bytes,4,opt,name=instance_name"`
}

func (m *StorageTokenProto) Reset()         { *m = StorageTokenProto{} }
func (m *StorageTokenProto) String() string { return protoString(m) }
func (*StorageTokenProto) ProtoMessage()    {}

// StorageTokenProto authorizes one short-lived file storage operation.
type StorageTokenProto struct {
	InstanceName string `protobuf:"bytes,1,opt,name=instance_name"`
	IssuedS      uint64 `protobuf:"varint,2,opt,name=issued_s"`
	IsStoreFile  bool   `protobuf:"varint,3,opt,name=is_store_file"`
}

func (m *ActionCallbackTokenProto) Reset()         { *m = ActionCallbackTokenProto{} }
func (m *ActionCallbackTokenProto) String() string { return protoString(m) }
func (*ActionCallbackTokenProto) ProtoMessage()    {}

// ActionCallbackTokenProto authenticates an action's callback into the
// system issuing it.
type ActionCallbackTokenProto struct {
	IssuedS uint64 `protobuf:"varint,1,opt,name=issued_s"`
}

func (m *CursorProto) Reset()         { *m = CursorProto{} }
func (m *CursorProto) String() string { return protoString(m) }
func (*CursorProto) ProtoMessage()    {}

// CursorProto is a paginated query's resume position.
type CursorProto struct {
	InstanceName      string   `protobuf:"bytes,1,opt,name=instance_name"`
	IsEnd             bool     `protobuf:"varint,2,opt,name=is_end"`
	AfterIndexKey     []byte   `protobuf:"bytes,3,opt,name=after_index_key"`
	QueryFingerprint  []byte   `protobuf:"bytes,4,opt,name=query_fingerprint"`
}

func (m *QueryJournalProto) Reset()         { *m = QueryJournalProto{} }
func (m *QueryJournalProto) String() string { return protoString(m) }
func (*QueryJournalProto) ProtoMessage()    {}

// QueryJournalProto wraps an optional end cursor.
type QueryJournalProto struct {
	HasEndCursor bool        `protobuf:"varint,1,opt,name=has_end_cursor"`
	EndCursor    CursorProto `protobuf:"bytes,2,opt,name=end_cursor"`
}

func protoString(m interface{}) string {
	return "keybroker_proto"
}
