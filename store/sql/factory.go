package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the intake stores over one shared bun handle.
type RepositoryFactory struct {
	db *bun.DB

	eventLedgerStore *EventLedgerStore
	interviewStore   *InterviewStore
	campaignStore    *CampaignStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.eventLedgerStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) initStores() error {
	eventLedgerStore, err := NewEventLedgerStore(f.db)
	if err != nil {
		return err
	}
	f.eventLedgerStore = eventLedgerStore

	interviewStore, err := NewInterviewStore(f.db)
	if err != nil {
		return err
	}
	f.interviewStore = interviewStore

	campaignStore, err := NewCampaignStore(f.db)
	if err != nil {
		return err
	}
	f.campaignStore = campaignStore
	return nil
}

func (f *RepositoryFactory) EventLedgerStore() *EventLedgerStore {
	if f == nil {
		return nil
	}
	return f.eventLedgerStore
}

func (f *RepositoryFactory) InterviewStore() *InterviewStore {
	if f == nil {
		return nil
	}
	return f.interviewStore
}

func (f *RepositoryFactory) CampaignStore() *CampaignStore {
	if f == nil {
		return nil
	}
	return f.campaignStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
